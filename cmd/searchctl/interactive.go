package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/gmaxsoft/elasticsearch-project/internal/controller"
)

const interactiveHelp = `Type to update the query. Commands:
  :search    run a search for the current query
  :pick N    choose suggestion N
  :quit      exit`

func newInteractiveCmd(opts *rootOptions) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "interactive",
		Short: "Drive the search box from stdin, one line per keystroke batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := controller.New(opts.backend(cmd), opts.logger(cmd), controller.WithDebounce(debounce))
			fmt.Fprintln(cmd.OutOrStdout(), interactiveHelp)
			return runInteractive(cmd.InOrStdin(), cmd.OutOrStdout(), c)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", controller.DefaultDebounce, "Quiet period before fetching suggestions")
	return cmd
}

// session renders controller state changes to a terminal.
type session struct {
	mu   sync.Mutex
	out  io.Writer
	last controller.State
}

func (s *session) render(st controller.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.SuggestionState == controller.SuggestionShown && s.last.SuggestionState != controller.SuggestionShown {
		if len(st.Suggestions) == 0 {
			fmt.Fprintln(s.out, "no suggestions")
		} else {
			fmt.Fprintln(s.out, "suggestions:")
			for i, title := range st.Suggestions {
				fmt.Fprintf(s.out, "  %d) %s\n", i+1, title)
			}
		}
	}
	if st.SearchState != s.last.SearchState {
		switch st.SearchState {
		case controller.SearchPending:
			fmt.Fprintf(s.out, "searching %q...\n", strings.TrimSpace(st.QueryText))
		case controller.SearchDone:
			_ = writeProducts(s.out, st.Results)
		case controller.SearchFailed:
			fmt.Fprintln(s.out, "error:", st.Error)
		}
	}
	s.last = st
}

func (s *session) println(a ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, a...)
}

// runInteractive feeds lines from in to c until EOF or :quit.
func runInteractive(in io.Reader, out io.Writer, c *controller.Controller) error {
	s := &session{out: out, last: c.State()}
	c.OnChange(s.render)
	defer func() {
		c.Close()
		c.Wait()
	}()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == ":quit":
			return nil
		case line == ":search":
			c.OnSearchTriggered()
			c.Wait()
		case strings.HasPrefix(line, ":pick"):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, ":pick")))
			suggestions := c.State().Suggestions
			if err != nil || n < 1 || n > len(suggestions) {
				s.println("no such suggestion")
				continue
			}
			c.OnSuggestionSelected(suggestions[n-1])
			s.println("query:", suggestions[n-1])
		default:
			c.OnQueryTextChange(line)
		}
	}
	return scanner.Err()
}
