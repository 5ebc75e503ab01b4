package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"workboard/internal/domain"
	"workboard/internal/engine"
)

func registerAttachments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-attachments",
		Method:      http.MethodGet,
		Path:        "/items/{item_id}/attachments",
		Summary:     "List attachments",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body attachmentList `json:"body"`
	}, error) {
		list, err := e.ListAttachments(ctx, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body attachmentList `json:"body"`
		}{Body: attachmentList{Items: nonNilSlice(list)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-attachment",
		Method:        http.MethodPost,
		Path:          "/items/{item_id}/attachments",
		Summary:       "Upload attachment",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string                  `path:"item_id"`
		Body   CreateAttachmentRequest `json:"body"`
	}) (*struct {
		Body domain.Attachment `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.AddAttachment(ctx, input.ItemID, domain.AttachmentUpload{
			Name:        input.Body.Name,
			ContentType: input.Body.ContentType,
			Content:     input.Body.Content,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Attachment `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-attachment-content",
		Method:      http.MethodGet,
		Path:        "/items/{item_id}/attachments/{attachment_id}/content",
		Summary:     "Download attachment content",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID       string `path:"item_id"`
		AttachmentID string `path:"attachment_id"`
	}) (*struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}, error) {
		a, content, err := e.AttachmentContent(ctx, input.ItemID, input.AttachmentID)
		if err != nil {
			return nil, handleError(err)
		}
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		return &struct {
			ContentType        string `header:"Content-Type"`
			ContentDisposition string `header:"Content-Disposition"`
			Body               []byte
		}{ContentType: ct, ContentDisposition: fmt.Sprintf("attachment; filename=%q", a.Name), Body: content}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rename-attachment",
		Method:      http.MethodPatch,
		Path:        "/items/{item_id}/attachments/{attachment_id}",
		Summary:     "Rename attachment",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID       string                  `path:"item_id"`
		AttachmentID string                  `path:"attachment_id"`
		Body         RenameAttachmentRequest `json:"body"`
	}) (*struct {
		Body domain.Attachment `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.RenameAttachment(ctx, input.ItemID, input.AttachmentID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Attachment `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-attachment",
		Method:        http.MethodDelete,
		Path:          "/items/{item_id}/attachments/{attachment_id}",
		Summary:       "Delete attachment",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID       string `path:"item_id"`
		AttachmentID string `path:"attachment_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteAttachment(ctx, input.ItemID, input.AttachmentID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
