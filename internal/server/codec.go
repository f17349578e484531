package server

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/invoice-rules/internal/common"
)

// decode maps a request struct onto dst through its JSON form. Unknown keys are rejected.
func decode(in *structpb.Struct, dst any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return common.NewAppError("INVALID_REQUEST", "request is not valid JSON", common.ErrInvalidInput)
	}
	if err := strictUnmarshal(raw, dst); err != nil {
		return common.NewAppError("INVALID_REQUEST", fmt.Sprintf("malformed request: %v", err), common.ErrInvalidInput)
	}
	return nil
}

// encode converts v to a response struct through its JSON form.
func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return out, nil
}
