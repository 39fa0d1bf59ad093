package rpc

import "encoding/json"

func (s *Server) regtestGenerate(params json.RawMessage) (any, error) {
	if err := s.assembler.Generate(); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}
