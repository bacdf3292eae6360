package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rendis/nodeflow/internal/flow"
	"github.com/rendis/nodeflow/internal/hclscene"
	"github.com/rendis/nodeflow/internal/scene"
	"github.com/rendis/nodeflow/internal/store"
	"github.com/rendis/nodeflow/pkg/schema"
)

const maxHCLBody = 1 << 20

// sceneView is the detailed scene response.
type sceneView struct {
	scene.Info
	Document *schema.SceneDocument `json:"document"`
}

// handleListScenes lists open scenes, or stored scenes with ?stored=true.
func (s *Server) handleListScenes(w http.ResponseWriter, r *http.Request) {
	if !queryBool(r, "stored", false) {
		writeJSON(w, http.StatusOK, s.deps.Scenes.List())
		return
	}
	st := s.deps.Scenes.Store()
	if st == nil {
		writeFlowError(w, schema.NewError(schema.ErrCodeStore, "no scene store configured"))
		return
	}
	scenes, err := st.ListScenes(r.Context(), store.SceneFilter{
		NameContains: r.URL.Query().Get("q"),
		Limit:        queryInt(r, "limit", 50),
		Offset:       queryInt(r, "offset", 0),
	})
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scenes)
}

// handleCreateScene creates an empty scene, or imports one when a document is given.
func (s *Server) handleCreateScene(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string                `json:"name"`
		Document *schema.SceneDocument `json:"document"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	var (
		sess *scene.Session
		err  error
	)
	if body.Document != nil {
		sess, err = s.deps.Scenes.Import(r.Context(), body.Name, body.Document)
	} else {
		sess, err = s.deps.Scenes.Create(r.Context(), body.Name)
	}
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Info())
}

// handleImportHCL imports a scene from an HCL scene file posted as the body.
// ?name= picks the scene block when the file declares several. Converter
// blocks are not registered here.
func (s *Server) handleImportHCL(w http.ResponseWriter, r *http.Request) {
	src, err := io.ReadAll(io.LimitReader(r.Body, maxHCLBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
		return
	}
	file, err := hclscene.Parse(src, "request.hcl")
	if err != nil {
		writeFlowError(w, err)
		return
	}

	name := r.URL.Query().Get("name")
	var block *hclscene.SceneBlock
	switch {
	case name != "":
		b, ok := file.Scene(name)
		if !ok {
			writeFlowError(w, schema.NewErrorf(schema.ErrCodeNotFound, "scene %q not declared", name))
			return
		}
		block = b
	case len(file.Scenes) == 1:
		block = file.Scenes[0]
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("file declares %d scenes; pick one with ?name=", len(file.Scenes)))
		return
	}

	doc, err := block.Document()
	if err != nil {
		writeFlowError(w, err)
		return
	}
	sess, err := s.deps.Scenes.Import(r.Context(), block.Name, doc)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Info())
}

// handleOpenScene loads a stored scene by id or name.
func (s *Server) handleOpenScene(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Scene string `json:"scene"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	sess, err := s.deps.Scenes.Open(r.Context(), body.Scene)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

// handleValidateDocument validates a posted document without opening it.
func (s *Server) handleValidateDocument(w http.ResponseWriter, r *http.Request) {
	var doc schema.SceneDocument
	if !decodeJSON(w, r, &doc) {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Scenes.Validate(&doc))
}

func (s *Server) handleGetScene(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sceneView{Info: sess.Info(), Document: sess.Snapshot()})
}

// handleRenameScene renames an open scene.
func (s *Server) handleRenameScene(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	sess, err := s.deps.Scenes.Rename(r.Context(), chi.URLParam(r, "scene"), body.Name)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) handleDeleteScene(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Scenes.Delete(r.Context(), chi.URLParam(r, "scene")); err != nil {
		writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSaveScene(w http.ResponseWriter, r *http.Request) {
	rev, err := s.deps.Scenes.Save(r.Context(), chi.URLParam(r, "scene"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	rev.Document = nil
	writeJSON(w, http.StatusOK, rev)
}

// handleCloseScene drops an open scene; ?save=false skips saving it first.
func (s *Server) handleCloseScene(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Scenes.Close(r.Context(), chi.URLParam(r, "scene"), queryBool(r, "save", true)); err != nil {
		writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearScene(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	if err := sess.Update(r.Context(), func(g *flow.Graph) error { return g.Clear() }); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

// handleLoadDocument replaces the scene contents with the posted document.
func (s *Server) handleLoadDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	var doc schema.SceneDocument
	if !decodeJSON(w, r, &doc) {
		return
	}
	if report := s.deps.Scenes.Validate(&doc); !report.Valid() {
		writeJSON(w, http.StatusUnprocessableEntity, report)
		return
	}
	if err := sess.Update(r.Context(), func(g *flow.Graph) error { return g.Restore(&doc) }); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

// handleValidateScene reports per-node validation of the live scene.
func (s *Server) handleValidateScene(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	var report *schema.ValidationReport
	sess.View(func(g *flow.Graph) { report = g.Validate() })
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListRevisions(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	st := s.deps.Scenes.Store()
	if st == nil {
		writeFlowError(w, schema.NewError(schema.ErrCodeStore, "no scene store configured"))
		return
	}
	revs, err := st.ListRevisions(r.Context(), sess.ID())
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, revs)
}

func (s *Server) handleRevert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Revision int64 `json:"revision"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	id := chi.URLParam(r, "scene")
	if err := s.deps.Scenes.Revert(r.Context(), id, body.Revision); err != nil {
		writeFlowError(w, err)
		return
	}
	sess, err := s.deps.Scenes.Get(id)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

// handleListEvents returns the stored notification log. ?since= skips
// events up to that sequence; ?type= restricts to one event type.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	st := s.deps.Scenes.Store()
	if st == nil {
		writeFlowError(w, schema.NewError(schema.ErrCodeStore, "no scene store configured"))
		return
	}

	var (
		events []*store.Event
		err    error
	)
	if typ := r.URL.Query().Get("type"); typ != "" {
		events, err = st.GetEventsByType(r.Context(), typ, store.EventFilter{
			SceneID: sess.ID(),
			Limit:   queryInt(r, "limit", 100),
		})
	} else {
		since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
		events, err = st.GetEvents(r.Context(), sess.ID(), since)
	}
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
