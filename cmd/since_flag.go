package cmd

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/spiffcs/devexport/internal/duration"
)

// sinceFlag rejects malformed since filters while flags are parsed, before
// any network call is made.
type sinceFlag struct {
	dst *string
}

var _ pflag.Value = (*sinceFlag)(nil)

func (f *sinceFlag) String() string {
	return *f.dst
}

func (f *sinceFlag) Set(s string) error {
	if _, err := duration.ParseSince(s, time.Now()); err != nil {
		return err
	}
	*f.dst = s
	return nil
}

func (f *sinceFlag) Type() string {
	return "since"
}
