package api

import (
	"errors"
	"net/http"

	"github.com/seyone-projects/reda-backend/internal/models"
	"github.com/seyone-projects/reda-backend/internal/service"
)

// maxImportMemory is how much of a multipart import is buffered in memory.
const maxImportMemory = 8 << 20

type loginRequest struct {
	MobileNumber string `json:"mobilenumber" validate:"required"`
	Password     string `json:"password" validate:"required"`
}

type loginUser struct {
	ID       int64  `json:"id"`
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type registeredUser struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// handleLogin accepts credentials as a JSON body, or as query parameters for
// clients that log in with GET.
func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.MobileNumber == "" && req.Password == "" {
		q := r.URL.Query()
		req.MobileNumber, req.Password = q.Get("mobilenumber"), q.Get("password")
	}
	if err := service.Validate(req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	res, err := s.deps.Users.Login(r.Context(), req.MobileNumber, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	u := res.User
	writeJSON(w, http.StatusOK, response{
		Status:  true,
		Message: "Login successful",
		Token:   res.Token,
		Data:    loginUser{ID: u.ID, Fullname: u.Fullname, Email: u.Email, Role: u.Role},
	})
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.UserInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	u, err := s.deps.Users.RegisterEmployee(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Employee registered successfully", registeredUser{ID: u.ID, Email: u.Email})
}

func (s *HTTPServer) handleAddUser(w http.ResponseWriter, r *http.Request) {
	var in service.UserInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	u, err := s.deps.Users.AddUser(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "User registered successfully", registeredUser{ID: u.ID, Email: u.Email})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Users.Logout(r.Context(), userFromContext(r.Context()).ID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Logged out successfully", nil)
}

func (s *HTTPServer) handleImportUsers(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			writeError(w, http.StatusBadRequest, "Expected a multipart upload with an xlsx file")
			return
		}
		writeServiceError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	report, err := s.deps.Users.ImportUsers(r.Context(), file)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Users imported", report)
}

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Users.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	writeSuccess(w, http.StatusOK, "", users)
}
