package rpc

import (
	"fmt"
	"math/big"

	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

// ── State endpoints ─────────────────────────────────────────────────────

func (s *Server) handleStateSigners(_ *Request) (interface{}, *Error) {
	list, ok := s.state.Signers().Latest()
	if !ok {
		return nil, &Error{Code: CodeUnavailable, Message: "signers not available yet"}
	}
	out := make([]SignerResult, len(list))
	for i, sg := range list {
		out[i] = NewSignerResult(sg)
	}
	return &SignerListResult{Signers: out}, nil
}

func (s *Server) handleStateSelected(_ *Request) (interface{}, *Error) {
	sel, ok := s.state.Selected().Latest()
	if !ok {
		return nil, &Error{Code: CodeUnavailable, Message: "selection not available yet"}
	}
	res := &SelectedResult{}
	if sel != nil {
		r := NewSignerResult(sel)
		res.Signer = &r
	}
	return res, nil
}

func (s *Server) handleStateTokens(_ *Request) (interface{}, *Error) {
	list, ok := s.state.Tokens().Latest()
	if !ok {
		return nil, &Error{Code: CodeUnavailable, Message: "tokens not available yet"}
	}
	return newTokenList(list), nil
}

func (s *Server) handleStateRequestUpdate(req *Request) (interface{}, *Error) {
	var param RequestUpdateParam
	if err := parseParams(req, &param); err != nil {
		return nil, err
	}
	if len(param.Kinds) == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "kinds required"}
	}

	kinds := make([]types.DataKind, 0, len(param.Kinds))
	for _, name := range param.Kinds {
		k, err := types.ParseDataKind(name)
		if err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
		kinds = append(kinds, k)
	}

	s.state.RequestUpdate(kinds, param.Addresses...)
	return &RequestUpdateResult{Queued: len(kinds)}, nil
}

func (s *Server) handleStateSelect(req *Request) (interface{}, *Error) {
	var param SelectParam
	if err := parseParams(req, &param); err != nil {
		return nil, err
	}
	if param.Address == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "address required"}
	}

	list, _ := s.state.Signers().Latest()
	if types.FindSigner(list, param.Address) == nil {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("signer %s not found", param.Address)}
	}

	s.state.Select(param.Address)
	return &SelectResult{Address: param.Address}, nil
}

// ── View endpoints ──────────────────────────────────────────────────────

func (s *Server) handleStateAvailableTokens(_ *Request) (interface{}, *Error) {
	if s.views == nil {
		return nil, &Error{Code: CodeNotFound, Message: "views not enabled"}
	}
	list, ok := s.views.AvailableTokens().Latest()
	if !ok {
		return nil, &Error{Code: CodeUnavailable, Message: "available tokens not available yet"}
	}
	return newTokenList(list), nil
}

func (s *Server) handleStateTokenPrices(_ *Request) (interface{}, *Error) {
	if s.views == nil {
		return nil, &Error{Code: CodeNotFound, Message: "views not enabled"}
	}
	list, ok := s.views.TokenPrices().Latest()
	if !ok {
		return nil, &Error{Code: CodeUnavailable, Message: "token prices not available yet"}
	}
	return newPricedTokenList(list), nil
}

func (s *Server) handleStatePools(_ *Request) (interface{}, *Error) {
	if s.views == nil {
		return nil, &Error{Code: CodeNotFound, Message: "views not enabled"}
	}
	list, ok := s.views.Pools().Latest()
	if !ok {
		return nil, &Error{Code: CodeUnavailable, Message: "pool reserves not available"}
	}
	return newPoolList(list), nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
