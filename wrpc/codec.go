package wrpc

import (
	"net/http"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
)

// MethodProposeRoundHash is the JSON-RPC method name on the wire.
const MethodProposeRoundHash = "proposeRoundHash"

const serviceName = "Witness"

// wireMethods maps the wire method names
// to the "Service.Method" names the rpc server dispatches on.
var wireMethods = map[string]string{
	MethodProposeRoundHash: serviceName + ".ProposeRoundHash",
}

// codec wraps the JSON-RPC 2.0 codec so that bare method names resolve to our service,
// and so that unreadable params are reported as invalid params.
type codec struct {
	inner *json2.Codec
}

func newCodec() codec {
	return codec{inner: json2.NewCodec()}
}

func (c codec) NewRequest(r *http.Request) rpc.CodecRequest {
	return codecRequest{CodecRequest: c.inner.NewRequest(r)}
}

type codecRequest struct {
	rpc.CodecRequest
}

func (r codecRequest) Method() (string, error) {
	m, err := r.CodecRequest.Method()
	if err != nil {
		return "", err
	}
	if full, ok := wireMethods[m]; ok {
		return full, nil
	}
	return m, nil
}

func (r codecRequest) ReadRequest(args any) error {
	if err := r.CodecRequest.ReadRequest(args); err != nil {
		return &json2.Error{
			Code:    json2.E_BAD_PARAMS,
			Message: err.Error(),
		}
	}
	return nil
}
