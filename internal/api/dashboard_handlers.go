package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/seyone-projects/reda-backend/internal/service"
)

const maxDashboardMemory = 32 << 20

func (s *HTTPServer) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Dashboard.Get(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", d)
}

// dashboardJSON is the body of a JSON dashboard update, which can only
// reorder or drop images and edit social links.
type dashboardJSON struct {
	Sections    map[string][]string `json:"sections"`
	SocialMedia json.RawMessage     `json:"socialMedia"`
}

func (s *HTTPServer) handleUpdateDashboard(w http.ResponseWriter, r *http.Request) {
	var (
		upd service.DashboardUpdate
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var files []io.Closer
		upd, files, err = multipartDashboardUpdate(r)
		defer func() {
			for _, f := range files {
				_ = f.Close()
			}
			if r.MultipartForm != nil {
				_ = r.MultipartForm.RemoveAll()
			}
		}()
	} else {
		var body dashboardJSON
		err = decodeJSON(r, &body)
		upd = service.DashboardUpdate{Retained: body.Sections, SocialMedia: body.SocialMedia}
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	d, err := s.deps.Dashboard.Update(r.Context(), upd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Dashboard updated successfully", d)
}

// multipartDashboardUpdate maps a form to an update: file parts named after a
// section are uploads, text parts with a section name list retained URLs and
// socialMedia carries the links as JSON text. The returned files must be
// closed by the caller once the update has been applied.
func multipartDashboardUpdate(r *http.Request) (service.DashboardUpdate, []io.Closer, error) {
	if err := r.ParseMultipartForm(maxDashboardMemory); err != nil {
		return service.DashboardUpdate{}, nil, err
	}
	form := r.MultipartForm
	upd := service.DashboardUpdate{
		Retained: make(map[string][]string),
		Uploads:  make(map[string][]service.Upload),
	}

	for field, values := range form.Value {
		if field == "socialMedia" {
			if len(values) > 0 && strings.TrimSpace(values[0]) != "" {
				upd.SocialMedia = socialMediaField(values[0])
			}
			continue
		}
		upd.Retained[field] = retainedURLs(values)
	}

	var files []io.Closer
	for field, headers := range form.File {
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				return service.DashboardUpdate{}, files, err
			}
			files = append(files, f)
			upd.Uploads[field] = append(upd.Uploads[field], service.Upload{
				Name:        fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Body:        f,
			})
		}
	}
	return upd, files, nil
}

// retainedURLs accepts repeated fields or a single JSON array.
func retainedURLs(values []string) []string {
	if len(values) == 1 {
		v := strings.TrimSpace(values[0])
		if strings.HasPrefix(v, "[") {
			var urls []string
			if json.Unmarshal([]byte(v), &urls) == nil {
				return urls
			}
		}
		if v == "" {
			return []string{}
		}
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// socialMediaField returns the form text as JSON, quoting it when it is not
// already a JSON value so the service sees a string wrapping an object.
func socialMediaField(v string) json.RawMessage {
	if json.Valid([]byte(v)) {
		return json.RawMessage(v)
	}
	quoted, _ := json.Marshal(v)
	return quoted
}
