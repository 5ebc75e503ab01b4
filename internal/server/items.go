package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"workboard/internal/engine"
	"workboard/internal/repo"
)

func registerItems(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-items",
		Method:      http.MethodGet,
		Path:        "/items",
		Summary:     "List items",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status" enum:"backlog,todo,in_progress,review,done"`
		Parent     string `query:"parent_id"`
		AssigneeID string `query:"assignee_id"`
		ProjectID  string `query:"project_id"`
		TopLevel   bool   `query:"top_level" doc:"Only items without a parent"`
	}) (*struct {
		Body itemList `json:"body"`
	}, error) {
		items, err := e.ListItems(ctx, repo.ItemFilters{
			Status:     input.Status,
			Parent:     input.Parent,
			AssigneeID: input.AssigneeID,
			ProjectID:  input.ProjectID,
			TopLevel:   input.TopLevel,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body itemList `json:"body"`
		}{Body: itemList{Items: mapItems(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-item",
		Method:        http.MethodPost,
		Path:          "/items",
		Summary:       "Create item",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body ItemRequest `json:"body"`
	}) (*struct {
		Body ItemResponse `json:"body"`
	}, error) {
		if len(rawBody(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		patch, err := patchFromRequest(input.Body, bodyKeys(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		it, err := e.CreateItem(ctx, patch, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ItemResponse `json:"body"`
		}{Body: itemResponse(it)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-item",
		Method:      http.MethodGet,
		Path:        "/items/{item_id}",
		Summary:     "Get item",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body ItemResponse `json:"body"`
	}, error) {
		it, err := e.GetItem(ctx, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ItemResponse `json:"body"`
		}{Body: itemResponse(it)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-item",
		Method:      http.MethodPut,
		Path:        "/items/{item_id}",
		Summary:     "Update item fields",
		Description: "Partial update: only the fields present in the body change and null clears a field. " +
			"Moving an item to done while a sub-item is open fails with subitems_incomplete.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ItemID string      `path:"item_id"`
		Body   ItemRequest `json:"body"`
	}) (*struct {
		Body ItemResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		patch, err := patchFromRequest(input.Body, bodyKeys(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		it, err := e.UpdateItem(ctx, input.ItemID, patch, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ItemResponse `json:"body"`
		}{Body: itemResponse(it)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-item",
		Method:        http.MethodDelete,
		Path:          "/items/{item_id}",
		Summary:       "Delete item with its sub-items, comments and attachments",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteItem(ctx, input.ItemID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
