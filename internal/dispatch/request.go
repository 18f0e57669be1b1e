package dispatch

// Request is the transport-agnostic call context handed to the pipeline.
// Transports (HTTP, gRPC) build one Request per inbound call.
type Request struct {
	// Endpoint is the route identifier of the registered endpoint.
	Endpoint string

	// Method is the call method (e.g. GET, POST).
	Method string

	// Metadata carries transport metadata such as the Authorization
	// header. Keys are canonical header names.
	Metadata map[string]string

	// Payload is the decoded request body, if any.
	Payload map[string]any

	// RemoteAddr identifies the caller for rate limiting and logging.
	RemoteAddr string
}

// Authorization returns the raw Authorization metadata value.
func (r *Request) Authorization() string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata["Authorization"]
}
