package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/oceanwatch/plastic-detection-service/detections"
	"github.com/oceanwatch/plastic-detection-service/imagecodec"
	"github.com/oceanwatch/plastic-detection-service/pipeline"
)

const (
	CodeInvalidRequest = "invalid_request"
	CodeInvalidImage   = "invalid_image"
	CodeDetectorBusy   = "detector_busy"
	CodeInference      = "inference_error"
	CodeRender         = "render_error"
	CodeEncode         = "encode_error"
	CodeCanceled       = "request_canceled"
	CodeTooLarge       = "payload_too_large"
	CodeInternal       = "internal_error"

	MsgMissingImage = "An image file must be uploaded in the 'file' form field."
	MsgInvalidImage = "The uploaded file could not be read as an image."
	MsgBusy         = "The detector is busy, please retry shortly."
	MsgInference    = "Object detection failed for this image."
	MsgRender       = "The annotated image could not be produced."
	MsgEncode       = "The annotated image could not be encoded."
	MsgCanceled     = "The request was canceled before it completed."
	MsgTooLarge     = "The uploaded image exceeds the size limit."
	MsgInternal     = "Unexpected server error."

	MsgResponseEncode = "The prediction could not be encoded as JSON."
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// classifyError maps a pipeline failure to an error code, user message and
// HTTP status. Client-caused failures are 4xx, everything else 5xx.
func classifyError(err error) (string, string, int) {
	switch {
	case errors.Is(err, pipeline.ErrMissingImage):
		return CodeInvalidRequest, MsgMissingImage, http.StatusBadRequest
	case errors.Is(err, imagecodec.ErrDecode):
		return CodeInvalidImage, MsgInvalidImage, http.StatusBadRequest
	case errors.Is(err, detections.ErrPoolBusy), errors.Is(err, detections.ErrPoolClosed):
		return CodeDetectorBusy, MsgBusy, http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return CodeCanceled, MsgCanceled, http.StatusServiceUnavailable
	case errors.Is(err, detections.ErrInference):
		return CodeInference, MsgInference, http.StatusInternalServerError
	case errors.Is(err, pipeline.ErrRender):
		return CodeRender, MsgRender, http.StatusInternalServerError
	case errors.Is(err, imagecodec.ErrEncode):
		return CodeEncode, MsgEncode, http.StatusInternalServerError
	}
	return CodeInternal, MsgInternal, http.StatusInternalServerError
}
