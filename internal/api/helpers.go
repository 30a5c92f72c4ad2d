package api

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/ckptinspect/internal/inspect"
)

// maxBodySize caps request bodies; every request body here is a small JSON object.
const maxBodySize = 64 << 10

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "", "")
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

// writeOpenError maps an Inspector.Open failure onto a status code.
func writeOpenError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, inspect.ErrUnsupported):
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "path", "")
	case errors.Is(err, ErrOutsideRoot):
		return writeError(c, http.StatusForbidden, "permission_error", err.Error(), "path", "")
	case errors.Is(err, fs.ErrNotExist):
		return writeError(c, http.StatusNotFound, "not_found_error", err.Error(), "path", "file_not_found")
	case errors.Is(err, fs.ErrPermission):
		return writeError(c, http.StatusForbidden, "permission_error", err.Error(), "path", "")
	default:
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(io.LimitReader(r, maxBodySize))
	if err := dec.Decode(&out); err != nil {
		return out, newInvalidRequest("invalid JSON body: " + err.Error())
	}
	return out, nil
}

// resolvePath turns a client-supplied path into a clean local path. With a
// root configured, relative paths are resolved against it and the result,
// symlinks included, must stay inside it.
func resolvePath(root, p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", newInvalidRequest("path is required")
	}
	if strings.ContainsRune(p, 0) {
		return "", newInvalidRequest("path contains a NUL byte")
	}
	if root == "" {
		return filepath.Clean(p), nil
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	full := p
	if !filepath.IsAbs(full) {
		full = filepath.Join(root, full)
	}
	full = filepath.Clean(full)
	if !within(root, full) {
		return "", ErrOutsideRoot
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(full)
	switch {
	case err == nil:
		if !within(realRoot, resolved) {
			return "", ErrOutsideRoot
		}
	case !errors.Is(err, os.ErrNotExist):
		return "", err
	}
	return full, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || filepath.IsLocal(rel)
}
