package httpserver

import (
	"net/http"

	"github.com/fairyhunter13/ai-assessment-engine/internal/usecase"
)

type codeRequest struct {
	SessionToken string `json:"sessionToken"`
	usecase.CodeInput
}

// RunCodeHandler executes code against the visible test cases.
func (s *Server) RunCodeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req codeRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		out, err := s.Code.Run(r.Context(), sessionToken(r, req.SessionToken), req.CodeInput)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, out)
	}
}

// SubmitCodeHandler grades code against all test cases. Hidden case
// inputs/outputs stay redacted in the response.
func (s *Server) SubmitCodeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req codeRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		out, err := s.Code.Submit(r.Context(), sessionToken(r, req.SessionToken), req.CodeInput)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, out)
	}
}

// ListLanguagesHandler returns the sandbox's supported languages.
func (s *Server) ListLanguagesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		langs, err := s.Code.Languages(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, langs)
	}
}
