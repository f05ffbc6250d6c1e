package handler

import (
	"encoding/json"

	"github.com/lasso-sustech/cluster-tap/errkind"
	"github.com/lasso-sustech/cluster-tap/wire"
	liberr "github.com/nabbar/golib/errors"
)

// BatchItem is one entry of a batch_execute request: an execute payload
// plus the name of the slave it targets ("" or the master's own name means
// "run on the master").
type BatchItem struct {
	Target string          `json:"target"`
	Args   json.RawMessage `json:"args"`
}

// BatchReply is the batch_execute wire reply: one tid slot and one error
// slot per input item, position-matched to the request list. A slot has
// either a tid or an error envelope, never both.
type BatchReply struct {
	TidList []string     `json:"tid_list"`
	ErrList []*[2]string `json:"err_list"`
}

// BatchExecuteServer implements batch_execute's two-pass fan-out: every
// item is pushed onto its target's FIFO in a first pass (local items start
// their task immediately, in a goroutine, so a slow local command cannot
// delay a remote push), and only in the second pass, in the same order, is
// each result drained. This guarantees every target begins executing
// concurrently before any single reply is awaited.
func BatchExecuteServer(s ServerState, items []BatchItem) BatchReply {
	reply := BatchReply{
		TidList: make([]string, len(items)),
		ErrList: make([]*[2]string, len(items)),
	}

	type localResult struct {
		tid string
		err error
	}
	type pending struct {
		idx   int
		local chan localResult
		proxy ClientProxy
	}
	var waits []pending

	for i, item := range items {
		if item.Target == "" || item.Target == s.SelfName() {
			ch := make(chan localResult, 1)
			go func(args json.RawMessage, ch chan localResult) {
				v, err := ExecuteClient(s, args)
				if err != nil {
					ch <- localResult{err: err}
					return
				}
				ch <- localResult{tid: v.(map[string]string)["tid"]}
			}(item.Args, ch)
			waits = append(waits, pending{idx: i, local: ch})
			continue
		}

		cp, ok := s.Lookup(item.Target)
		if !ok {
			reply.ErrList[i] = errEnvelopeOf(errkind.New(errkind.ClientNotFound))
			continue
		}
		cp.Push(Execute, item.Args)
		waits = append(waits, pending{idx: i, proxy: cp})
	}

	for _, p := range waits {
		if p.local != nil {
			r := <-p.local
			if r.err != nil {
				reply.ErrList[p.idx] = errEnvelopeOf(r.err)
			} else {
				reply.TidList[p.idx] = r.tid
			}
			continue
		}

		raw, err := p.proxy.Recv()
		if err != nil {
			reply.ErrList[p.idx] = &[2]string{errkind.Name(errkind.ClientConnectionLoss), err.Error()}
			continue
		}
		if className, msg, ok := wire.DecodeErr(raw); ok {
			reply.ErrList[p.idx] = &[2]string{className, msg}
			continue
		}
		var v struct {
			Tid string `json:"tid"`
		}
		_ = json.Unmarshal(raw, &v)
		reply.TidList[p.idx] = v.Tid
	}

	return reply
}

func errEnvelopeOf(err error) *[2]string {
	if le, ok := err.(liberr.Error); ok {
		return &[2]string{errkind.Name(le.GetCode()), le.StringError()}
	}
	return &[2]string{errkind.Name(errkind.Unknown), err.Error()}
}
