package sandbox

import (
	"context"
	"strings"

	"github.com/blackcoderx/hive/pkg/transport"
)

// call is one pm.sendRequest invocation as seen by the host.
type call struct {
	Method  string
	URL     string
	Headers []transport.Pair
	Body    []byte
}

func (c call) request(sslVerify bool) transport.Request {
	return transport.Request{
		Method:    c.Method,
		URL:       c.URL,
		Headers:   c.Headers,
		Body:      c.Body,
		SSLVerify: sslVerify,
	}
}

func (c call) matches(other call) bool {
	return strings.EqualFold(c.Method, other.Method) && c.URL == other.URL
}

// reply is what pm.sendRequest hands back to the script. Err is set for a
// transport fault.
type reply struct {
	Response *transport.Response
	Err      string
}

func inert() reply {
	return reply{Response: &transport.Response{Headers: map[string]string{}}}
}

// sendHandler decides what the i-th pm.sendRequest call of a run returns.
type sendHandler interface {
	handle(index int, c call) reply
}

// capturer records calls during the detection run.
type capturer struct {
	calls []call
}

func (h *capturer) handle(_ int, c call) reply {
	h.calls = append(h.calls, c)
	return inert()
}

// replayer feeds real responses to the replay run. A call that does not
// line up with what detection saw gets the inert placeholder.
type replayer struct {
	calls     []call
	responses []reply
}

func (h *replayer) handle(index int, c call) reply {
	if index >= len(h.calls) || !h.calls[index].matches(c) {
		return inert()
	}
	return h.responses[index]
}

type bridged struct {
	index int
	reply reply
}

// bridge performs the captured calls in order on its own goroutine. If ctx
// ends first, every call without a response gets a fault reply.
func (s *Sandbox) bridge(ctx context.Context, calls []call, sslVerify bool) []reply {
	replies := make([]reply, len(calls))
	done := make([]bool, len(calls))

	results := make(chan bridged, len(calls))
	go func() {
		defer close(results)
		for i, c := range calls {
			if ctx.Err() != nil {
				return
			}
			resp, err := s.sender.Do(ctx, c.request(sslVerify))
			if err != nil {
				s.logger.Debug("nested request failed", "method", c.Method, "url", c.URL, "error", err)
				results <- bridged{i, reply{Response: transport.FaultResponse(err), Err: err.Error()}}
				continue
			}
			results <- bridged{i, reply{Response: resp}}
		}
	}()

	for {
		select {
		case res, ok := <-results:
			if !ok {
				if err := ctx.Err(); err != nil {
					fillFaults(replies, done, err)
				}
				return replies
			}
			replies[res.index] = res.reply
			done[res.index] = true
		case <-ctx.Done():
			fillFaults(replies, done, ctx.Err())
			return replies
		}
	}
}

func fillFaults(replies []reply, done []bool, err error) {
	for i := range replies {
		if !done[i] {
			replies[i] = reply{Response: transport.FaultResponse(err), Err: err.Error()}
		}
	}
}
