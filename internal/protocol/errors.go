package protocol

const (
	// Handshake/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrVersion         = "E_VERSION"
	ErrCatalog         = "E_CATALOG"
	ErrSessionFull     = "E_SESSION_FULL"

	// Action outcome classes.
	ErrNoPermission = "E_NO_PERMISSION"
	ErrPrecondition = "E_PRECONDITION"
	ErrNoResource   = "E_NO_RESOURCE"
	ErrProtocol     = "E_PROTOCOL"
	ErrRateLimit    = "E_RATE_LIMIT"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrVersion:         {},
	ErrCatalog:         {},
	ErrSessionFull:     {},
	ErrNoPermission:    {},
	ErrPrecondition:    {},
	ErrNoResource:      {},
	ErrProtocol:        {},
	ErrRateLimit:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// NormalizeCode maps unknown codes to ErrInternal.
func NormalizeCode(code string) string {
	if IsKnownCode(code) {
		return code
	}
	return ErrInternal
}
