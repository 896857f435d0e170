package memory

import (
	"fmt"

	jetruntime "github.com/wippyai/jet-runtime"
)

// args decodes the positional arguments of one call. The first decoding
// failure sticks; later accessors return zero values.
type args struct {
	err    error
	symbol string
	list   []any
}

func (a *args) fail(i int, want string) {
	if a.err == nil {
		a.err = fmt.Errorf("%s: argument %d: want %s, got %T", a.symbol, i, want, a.at(i))
	}
}

func (a *args) at(i int) any {
	if i < len(a.list) {
		return a.list[i]
	}
	return nil
}

func (a *args) expect(n int) {
	if a.err == nil && len(a.list) != n {
		a.err = fmt.Errorf("%s: want %d arguments, got %d", a.symbol, n, len(a.list))
	}
}

func (a *args) word(i int) uint64 {
	v, ok := jetruntime.Uint64(a.at(i))
	if !ok {
		a.fail(i, "integer")
	}
	return v
}

func (a *args) str(i int) jetruntime.String {
	v, ok := a.at(i).(jetruntime.String)
	if !ok {
		a.fail(i, "String")
	}
	return v
}

func (a *args) out(i int) *uint64 {
	v, ok := a.at(i).(*uint64)
	if !ok {
		a.fail(i, "*uint64")
	}
	return v
}

func (a *args) callback(i int) jetruntime.Callback {
	v, ok := a.at(i).(jetruntime.Callback)
	if !ok {
		a.fail(i, "Callback")
	}
	return v
}

func set(p *uint64, v uint64) {
	if p != nil {
		*p = v
	}
}
