package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type patternReport struct {
	Pattern  string            `json:"pattern"`
	Error    string            `json:"error,omitempty"`
	Captures map[string]string `json:"captures,omitempty"`
}

var errInvalidPatterns = errors.New("some patterns are invalid")

func newPatternsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "patterns [NICKNAME...]",
		Short: "Validate nickname extraction patterns and try them on sample nicknames",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.settings()
			if err != nil {
				return err
			}
			set := s.ResolverConfig().Patterns

			var reports []patternReport
			bad := 0
			for _, p := range set.Patterns() {
				r := patternReport{Pattern: p.String()}
				if p.Err() != nil {
					r.Error = p.Err().Error()
					bad++
				} else if len(args) > 0 {
					r.Captures = map[string]string{}
					for _, nick := range args {
						if got, ok := p.Extract(nick); ok {
							r.Captures[nick] = got
						}
					}
				}
				reports = append(reports, r)
			}

			err = opts.print(cmd.OutOrStdout(), reports, func(w io.Writer) {
				if len(reports) == 0 {
					fmt.Fprintln(w, "no patterns configured")
					return
				}
				for _, r := range reports {
					if r.Error != "" {
						fmt.Fprintf(w, "INVALID %q: %s\n", r.Pattern, r.Error)
						continue
					}
					fmt.Fprintf(w, "ok      %q\n", r.Pattern)
					for _, nick := range args {
						if got, ok := r.Captures[nick]; ok {
							fmt.Fprintf(w, "        %q -> %q\n", nick, got)
						}
					}
				}
			})
			if err != nil {
				return err
			}
			if bad > 0 {
				return fmt.Errorf("%w: %d", errInvalidPatterns, bad)
			}
			return nil
		},
	}
}
