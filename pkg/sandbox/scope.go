package sandbox

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/dop251/goja"

	"github.com/blackcoderx/hive/pkg/transport"
)

// scope is the host side of one runtime: the pm and console globals and the
// state they write into.
type scope struct {
	vm      *goja.Runtime
	in      Input
	sends   sendHandler
	out     *Result
	working map[string]string
	issued  int

	stringify goja.Callable
	parse     goja.Callable
}

func newScope(vm *goja.Runtime, in Input, sends sendHandler, out *Result) *scope {
	working := make(map[string]string, len(in.Env))
	maps.Copy(working, in.Env)
	return &scope{vm: vm, in: in, sends: sends, out: out, working: working}
}

func (s *scope) install() error {
	jsonObj := s.vm.Get("JSON").ToObject(s.vm)
	var ok bool
	if s.stringify, ok = goja.AssertFunction(jsonObj.Get("stringify")); !ok {
		return errors.New("JSON.stringify is unavailable")
	}
	if s.parse, ok = goja.AssertFunction(jsonObj.Get("parse")); !ok {
		return errors.New("JSON.parse is unavailable")
	}

	console := s.vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "error"} {
		if err := console.Set(name, s.log); err != nil {
			return err
		}
	}

	environment := s.vm.NewObject()
	execution := s.vm.NewObject()
	pm := s.vm.NewObject()
	err := errors.Join(
		environment.Set("get", s.envGet),
		environment.Set("set", s.envSet),
		execution.Set("runRequest", s.runRequest),
		pm.Set("environment", environment),
		pm.Set("execution", execution),
		pm.Set("sendRequest", s.sendRequest),
		pm.Set("require", s.require),
	)
	if err != nil {
		return err
	}
	if s.in.Response != nil {
		if err := pm.Set("response", s.responseObject(reply{Response: s.in.Response})); err != nil {
			return err
		}
	}

	return errors.Join(s.vm.Set("pm", pm), s.vm.Set("console", console))
}

func (s *scope) log(fc goja.FunctionCall) goja.Value {
	parts := make([]string, len(fc.Arguments))
	for i, arg := range fc.Arguments {
		parts[i] = s.format(arg)
	}
	s.out.Console = append(s.out.Console, strings.Join(parts, " "))
	return goja.Undefined()
}

func (s *scope) warn(line string) {
	s.out.Console = append(s.out.Console, "[warn] "+line)
}

// format renders one console argument: strings verbatim, objects and null
// as JSON, everything else through String().
func (s *scope) format(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	if obj, ok := v.(*goja.Object); ok {
		out, err := s.stringify(goja.Undefined(), obj)
		if err == nil && out != nil && !goja.IsUndefined(out) {
			return out.String()
		}
		return obj.String()
	}
	return v.String()
}

func (s *scope) envGet(fc goja.FunctionCall) goja.Value {
	if v, ok := s.working[fc.Argument(0).String()]; ok {
		return s.vm.ToValue(v)
	}
	return goja.Null()
}

func (s *scope) envSet(fc goja.FunctionCall) goja.Value {
	key, value := fc.Argument(0).String(), fc.Argument(1).String()
	s.working[key] = value
	s.out.EnvUpdates[key] = value
	return goja.Undefined()
}

func (s *scope) require(fc goja.FunctionCall) goja.Value {
	s.warn(fmt.Sprintf("pm.require(%q) is not supported", fc.Argument(0).String()))
	return s.vm.NewObject()
}

func (s *scope) runRequest(goja.FunctionCall) goja.Value {
	s.warn("pm.execution.runRequest is not supported")
	res := s.vm.NewObject()
	_ = res.Set("body", s.vm.NewObject())
	return res
}

func (s *scope) sendRequest(fc goja.FunctionCall) goja.Value {
	var r reply
	c, err := parseCall(fc.Argument(0).Export())
	if err != nil {
		r = reply{Response: transport.FaultResponse(err), Err: err.Error()}
	} else {
		r = s.sends.handle(s.issued, c)
		s.issued++
	}

	res := s.responseObject(r)
	if cb, ok := goja.AssertFunction(fc.Argument(1)); ok {
		errArg := goja.Null()
		if r.Err != "" {
			errArg = s.vm.ToValue(r.Err)
		}
		if _, err := cb(goja.Undefined(), errArg, res); err != nil {
			var ex *goja.Exception
			if errors.As(err, &ex) {
				panic(ex.Value())
			}
			panic(err)
		}
	}
	return res
}

// responseObject builds the shape shared by pm.response and the value
// returned from pm.sendRequest.
func (s *scope) responseObject(r reply) *goja.Object {
	resp := r.Response
	obj := s.vm.NewObject()

	headers := s.vm.NewObject()
	for _, k := range slices.Sorted(maps.Keys(resp.Headers)) {
		_ = headers.Set(k, resp.Headers[k])
	}

	_ = obj.Set("status", resp.Status)
	_ = obj.Set("code", resp.Status)
	_ = obj.Set("statusCode", resp.Status)
	_ = obj.Set("headers", headers)
	_ = obj.Set("body", resp.BodyText)
	_ = obj.Set("responseTime", resp.ElapsedMs)
	_ = obj.Set("text", func(goja.FunctionCall) goja.Value {
		return s.vm.ToValue(resp.BodyText)
	})
	_ = obj.Set("json", func(goja.FunctionCall) goja.Value {
		v, err := s.parse(goja.Undefined(), s.vm.ToValue(resp.BodyText))
		if err != nil {
			return goja.Null()
		}
		return v
	})
	if r.Err != "" {
		_ = obj.Set("error", r.Err)
	}
	return obj
}
