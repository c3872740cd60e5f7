package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/opendeck/deckstore/deckapi"
	"github.com/opendeck/deckstore/deckdoc"
)

func (s *Server) handleListDecks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if len(q) == 0 {
		briefs, err := s.api.ListDecks(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, briefs)
		return
	}

	res, err := s.api.SearchDecks(r.Context(), parseSearchQuery(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetDeck(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	inline := r.URL.Query().Get("inline") == "true"

	deck, err := s.api.GetDeck(r.Context(), id, inline)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deck)
}

func (s *Server) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	meta, err := s.api.GetDeckMetadata(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// handleSaveDeck implements PUT /decks/{id} (§6): the body is a legacy,
// self-contained deck by default. A client that has already converted
// asset:// references itself sets ?legacy=false to skip reconversion.
func (s *Server) handleSaveDeck(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var deck deckdoc.Manifest
	if err := json.NewDecoder(r.Body).Decode(&deck); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body: " + err.Error()})
		return
	}
	deck.Meta.ID = id

	opts := deckapi.SaveOptions{Legacy: r.URL.Query().Get("legacy") != "false"}
	saved, err := s.api.SaveDeck(r.Context(), deck, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteDeck(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.api.DeleteDeck(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetThumbnail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	data, err := s.api.GetDeckThumbnail(r.Context(), id)
	if err != nil {
		if errors.Is(err, deckapi.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/bmp")
	w.Write(data)
}
