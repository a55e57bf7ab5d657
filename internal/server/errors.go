package server

import (
	"log"
	"net/http"

	"github.com/envledger/envledger/internal/routing"
	"github.com/envledger/envledger/pkg/storeerr"
)

func statusForKind(kind storeerr.Kind) int {
	switch kind {
	case storeerr.KindNotFound:
		return http.StatusNotFound
	case storeerr.KindAlreadyExists:
		return http.StatusConflict
	case storeerr.KindValidation:
		return http.StatusBadRequest
	case storeerr.KindConflict:
		return http.StatusConflict
	case storeerr.KindUnavailable:
		return http.StatusServiceUnavailable
	case storeerr.KindUnseal:
		return http.StatusUnprocessableEntity
	case storeerr.KindKeyNotConfigured:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	kind := storeerr.KindOf(err)
	code := storeerr.CodeOf(err)
	if code == "" {
		code = "internal_error"
	}
	// Unseal failures mean ciphertext that should have opened did not.
	// They are never retried and must never pass silently.
	if kind == storeerr.KindUnseal {
		log.Printf("UNSEAL FAILURE method=%s path=%s code=%s err=%v", r.Method, r.URL.Path, code, err)
	}
	status := http.StatusInternalServerError
	if kind != "" {
		status = statusForKind(kind)
	}
	routing.WriteError(w, r, routing.RouteClassPublicAPI, status, code, err.Error())
}
