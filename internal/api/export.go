package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rendis/nodeflow/internal/diagram"
	"github.com/rendis/nodeflow/internal/flow"
	"github.com/rendis/nodeflow/internal/hclscene"
)

// handleListModels returns the model catalogue grouped by category.
// ?filter= keeps names containing the text, case-insensitively.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Scenes.Models().Filter(r.URL.Query().Get("filter")))
}

func (s *Server) handleListConverters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Scenes.Converters().Pairs())
}

func (s *Server) handleStyle(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Style)
}

// handleExport renders the scene. ?format= is one of json, hcl, mermaid,
// ascii, png or svg.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(sess.Snapshot(), "", "  ")
		if err != nil {
			writeFlowError(w, err)
			return
		}
		writeBody(w, "application/json", data)

	case "hcl":
		data, err := hclscene.Encode(sess.Name(), sess.Snapshot())
		if err != nil {
			writeFlowError(w, err)
			return
		}
		writeBody(w, "text/plain; charset=utf-8", data)

	case "mermaid", "ascii", "png", "svg":
		var model *diagram.DiagramModel
		sess.View(func(g *flow.Graph) { model = diagram.Build(sess.Name(), g, s.deps.Style) })

		switch format {
		case "mermaid":
			writeBody(w, "text/plain; charset=utf-8", []byte(diagram.RenderMermaid(model)))
		case "ascii":
			writeBody(w, "text/plain; charset=utf-8", []byte(diagram.RenderASCIIAuto(r.Context(), model, s.deps.BinDir)))
		default:
			data, err := diagram.Render(r.Context(), model, diagram.ImageFormat(format))
			if err != nil {
				writeFlowError(w, err)
				return
			}
			contentType := "image/png"
			if format == "svg" {
				contentType = "image/svg+xml"
			}
			writeBody(w, contentType, data)
		}

	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q", format))
	}
}

func writeBody(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
