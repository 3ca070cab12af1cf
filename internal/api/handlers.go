package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"

	"github.com/nvandessel/forensic-council/internal/constants"
	"github.com/nvandessel/forensic-council/internal/council"
	"github.com/nvandessel/forensic-council/internal/engine"
	"github.com/nvandessel/forensic-council/internal/intake"
	"github.com/nvandessel/forensic-council/internal/pathutil"
	"github.com/nvandessel/forensic-council/internal/sanitize"
	"github.com/nvandessel/forensic-council/internal/store"
)

// StartRunRequest names evidence already on disk.
type StartRunRequest struct {
	Path string `json:"path"`
}

// StartRunResponse describes an accepted submission.
type StartRunResponse struct {
	File     intake.File     `json:"file"`
	Snapshot engine.Snapshot `json:"snapshot"`
}

// AgentInfo is the public view of one catalog entry.
type AgentInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Description string `json:"description,omitempty"`
}

// Health returns health status.
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": s.version,
	})
}

// GetCatalog lists the agents in stage order.
func (s *Server) GetCatalog(c echo.Context) error {
	defs := s.svc.Catalog().All()
	agents := make([]AgentInfo, len(defs))
	for i, d := range defs {
		agents[i] = AgentInfo{ID: d.ID, Name: d.Name, Role: d.Role, Description: d.Description}
	}
	return c.JSON(http.StatusOK, map[string]any{"agents": agents})
}

// GetRun returns the current snapshot.
func (s *Server) GetRun(c echo.Context) error {
	return c.JSON(http.StatusOK, s.svc.Snapshot())
}

// StartRun accepts evidence as a multipart "file" upload or as a JSON body
// naming a path under the project root.
func (s *Server) StartRun(c echo.Context) error {
	var path string
	uploaded := false

	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, "multipart field \"file\" is required")
		}
		saved, status, err := s.saveUpload(fh)
		if err != nil {
			return errorJSON(c, status, err.Error())
		}
		path, uploaded = saved, true
	} else {
		var req StartRunRequest
		if err := c.Bind(&req); err != nil {
			return errorJSON(c, http.StatusBadRequest, "invalid request body")
		}
		if req.Path == "" {
			return errorJSON(c, http.StatusBadRequest, "path is required")
		}
		if err := s.evidenceDirs.Check(req.Path); err != nil {
			return errorJSON(c, http.StatusForbidden, err.Error())
		}
		path = req.Path
	}

	f, err := s.svc.Analyze(c.Request().Context(), path)
	if err != nil {
		if uploaded {
			os.Remove(path)
		}
		switch {
		case errors.Is(err, council.ErrRunInProgress):
			return errorJSON(c, http.StatusConflict, err.Error())
		case errors.Is(err, council.ErrInvalidEvidence):
			return errorJSON(c, http.StatusUnprocessableEntity, err.Error())
		default:
			return errorJSON(c, http.StatusInternalServerError, err.Error())
		}
	}

	return c.JSON(http.StatusAccepted, StartRunResponse{File: f, Snapshot: s.svc.Snapshot()})
}

// saveUpload copies an uploaded file into the evidence directory and
// returns its path along with the HTTP status to use on failure.
func (s *Server) saveUpload(fh *multipart.FileHeader) (string, int, error) {
	if s.maxUpload > 0 && fh.Size > s.maxUpload {
		return "", http.StatusRequestEntityTooLarge,
			fmt.Errorf("upload exceeds the %s limit", humanize.IBytes(uint64(s.maxUpload)))
	}

	src, err := fh.Open()
	if err != nil {
		return "", http.StatusBadRequest, fmt.Errorf("reading upload: %w", err)
	}
	defer src.Close()

	dst, err := pathutil.CreateUnique(s.evidenceDir, sanitize.FileName(fh.Filename))
	if err != nil {
		return "", http.StatusInternalServerError, err
	}
	path := dst.Name()

	var r io.Reader = src
	if s.maxUpload > 0 {
		r = io.LimitReader(src, s.maxUpload+1)
	}
	n, err := io.Copy(dst, r)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", http.StatusInternalServerError, fmt.Errorf("saving upload: %w", err)
	}
	if s.maxUpload > 0 && n > s.maxUpload {
		os.Remove(path)
		return "", http.StatusRequestEntityTooLarge,
			fmt.Errorf("upload exceeds the %s limit", humanize.IBytes(uint64(s.maxUpload)))
	}

	s.logger.Info("evidence uploaded", "file", pathutil.RedactPath(path), "bytes", n)
	return path, 0, nil
}

// ResetRun abandons the current run.
func (s *Server) ResetRun(c echo.Context) error {
	s.svc.Reset()
	return c.JSON(http.StatusOK, s.svc.Snapshot())
}

// ListReports returns the history, newest first. ?limit=N caps the list.
func (s *Server) ListReports(c echo.Context) error {
	limit := constants.DefaultHistoryPageSize
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return errorJSON(c, http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}

	reports, err := s.svc.History(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	total := len(reports)
	if limit > 0 && len(reports) > limit {
		reports = reports[:limit]
	}
	return c.JSON(http.StatusOK, map[string]any{"reports": reports, "total": total})
}

// GetCurrentReport returns the stored current report.
func (s *Server) GetCurrentReport(c echo.Context) error {
	r, err := s.svc.CurrentReport(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	if r == nil {
		return errorJSON(c, http.StatusNotFound, "no current report")
	}
	return c.JSON(http.StatusOK, r)
}

// GetReport returns one report by id.
func (s *Server) GetReport(c echo.Context) error {
	r, err := s.svc.Report(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, err.Error())
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, r)
}

// DeleteReport removes one report from the history.
func (s *Server) DeleteReport(c echo.Context) error {
	err := s.svc.DeleteReport(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, err.Error())
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// ClearReports empties the history.
func (s *Server) ClearReports(c echo.Context) error {
	if err := s.svc.ClearHistory(c.Request().Context()); err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
