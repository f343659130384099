package transport

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/formbridge/internal/submission"
	"github.com/pitabwire/formbridge/model"
)

const defaultMaxUploadBytes = 32 << 20

func handleCreateRecord(processor *submission.Processor, maxUpload int64) http.HandlerFunc {
	return submitHandler(processor, maxUpload, model.ModeCreate)
}

func handleUpdateRecord(processor *submission.Processor, maxUpload int64) http.HandlerFunc {
	return submitHandler(processor, maxUpload, model.ModeEdit)
}

func submitHandler(processor *submission.Processor, maxUpload int64, mode string) http.HandlerFunc {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		entityName := chi.URLParam(r, "entity")

		form, err := decodeSubmission(r, maxUpload)
		if err != nil {
			WriteError(w, err)
			return
		}

		req := submission.Request{
			Form:           form,
			Mode:           mode,
			RecordID:       chi.URLParam(r, "recordId"),
			IdempotencyKey: r.Header.Get("X-Idempotency-Key"),
		}

		resp, err := processor.Execute(r.Context(), rctx, entityName, req)
		if err != nil {
			// Validation rejections still carry the field detail the
			// frontend renders, so the response body wins over the
			// bare envelope.
			var env *model.ErrorEnvelope
			if resp != nil && errors.As(err, &env) && env.Code == model.ErrValidationError {
				WriteJSON(w, http.StatusUnprocessableEntity, resp)
				return
			}
			WriteError(w, err)
			return
		}

		status := http.StatusOK
		if mode == model.ModeCreate {
			status = http.StatusCreated
		}
		WriteJSON(w, status, resp)
	}
}

// decodeSubmission reads the submitted form state. A JSON body carries the
// form directly; a multipart body carries it as a "form" part with binary
// uploads as sibling file parts named after their field, using
// group[index][field] for group item files.
func decodeSubmission(r *http.Request, maxUpload int64) (model.FormModel, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		return decodeMultipartSubmission(r, maxUpload)
	}

	var form model.FormModel
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpload)).Decode(&form); err != nil {
		return model.FormModel{}, model.NewBadRequestError("invalid JSON body")
	}
	return form, nil
}

func decodeMultipartSubmission(r *http.Request, maxUpload int64) (model.FormModel, error) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		return model.FormModel{}, model.NewBadRequestError("invalid multipart body")
	}

	var form model.FormModel
	raw := r.FormValue("form")
	if raw == "" {
		return model.FormModel{}, model.NewBadRequestError("missing form part")
	}
	if err := json.Unmarshal([]byte(raw), &form); err != nil {
		return model.FormModel{}, model.NewBadRequestError("invalid form part")
	}
	if form.Values == nil {
		form.Values = make(map[string]any)
	}

	for name, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		fv, err := readFilePart(headers[0])
		if err != nil {
			return model.FormModel{}, err
		}
		if err := placeFileValue(&form, name, fv); err != nil {
			return model.FormModel{}, err
		}
	}
	return form, nil
}

func readFilePart(header *multipart.FileHeader) (*model.FileValue, error) {
	f, err := header.Open()
	if err != nil {
		return nil, model.NewBadRequestError("unreadable file part " + header.Filename)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, model.NewBadRequestError("unreadable file part " + header.Filename)
	}
	return &model.FileValue{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	}, nil
}

// placeFileValue stores an uploaded file at its form location. Scalar file
// fields use the bare field key; group item files use group[index][field].
func placeFileValue(form *model.FormModel, name string, fv *model.FileValue) error {
	groupKey, index, fieldKey, ok := parseGroupFileKey(name)
	if !ok {
		form.Values[name] = fv
		return nil
	}

	items := form.Groups[groupKey]
	if index < 0 || index >= len(items) {
		return model.NewBadRequestError("file part " + name + " references a missing group item")
	}
	if items[index].Values == nil {
		items[index].Values = make(map[string]any)
	}
	items[index].Values[fieldKey] = fv
	return nil
}

func parseGroupFileKey(name string) (group string, index int, field string, ok bool) {
	open := strings.Index(name, "[")
	if open <= 0 || !strings.HasSuffix(name, "]") {
		return "", 0, "", false
	}
	close1 := strings.Index(name[open:], "]")
	if close1 < 0 {
		return "", 0, "", false
	}
	close1 += open

	idx := 0
	digits := name[open+1 : close1]
	if digits == "" {
		return "", 0, "", false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return "", 0, "", false
		}
		idx = idx*10 + int(c-'0')
	}

	rest := name[close1+1:]
	if !strings.HasPrefix(rest, "[") || !strings.HasSuffix(rest, "]") {
		return "", 0, "", false
	}
	field = rest[1 : len(rest)-1]
	if field == "" {
		return "", 0, "", false
	}
	return name[:open], idx, field, true
}
