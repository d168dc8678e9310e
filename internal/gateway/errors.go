package gateway

import (
	"encoding/xml"
	"net/http"

	"github.com/objectgw/gateway/internal/gwerr"
)

// gatewayError is the XML error envelope returned to clients, mirroring the
// teacher's S3Error shape.
type gatewayError struct {
	XMLName  xml.Name `xml:"Error"`
	Code     string   `xml:"Code"`
	Message  string   `xml:"Message"`
	Resource string   `xml:"Resource"`
}

// writeError is the single dispatch point mapping a typed error to an HTTP
// status and XML body. DELETE callers pass isDelete=true so a NotFound maps
// to 204 (delete of an absent key is still success) rather than 404.
func writeError(w http.ResponseWriter, r *http.Request, err error, isDelete bool) {
	status, code := statusAndCode(err, isDelete)

	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_ = xml.NewEncoder(w).Encode(gatewayError{
		Code:     code,
		Message:  err.Error(),
		Resource: r.URL.Path,
	})
}

func statusAndCode(err error, isDelete bool) (int, string) {
	switch gwerr.KindOf(err) {
	case gwerr.KindNotFound:
		if isDelete {
			return http.StatusNoContent, "NoSuchKey"
		}
		return http.StatusNotFound, "NoSuchKey"
	case gwerr.KindTimeout:
		return http.StatusGatewayTimeout, "RequestTimeout"
	case gwerr.KindBadRange:
		return http.StatusRequestedRangeNotSatisfiable, "InvalidRange"
	case gwerr.KindBadRequest:
		return http.StatusBadRequest, "InvalidRequest"
	case gwerr.KindRolledBack:
		return http.StatusInternalServerError, "InternalError"
	default:
		return http.StatusInternalServerError, "InternalError"
	}
}
