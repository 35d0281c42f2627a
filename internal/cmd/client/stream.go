package clientcmd

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewStreamCommand builds the `strom stream` client command group speaking
// the HTTP wire protocol.
func NewStreamCommand(apiURL func() string) *cobra.Command {
	streamCmd := &cobra.Command{Use: "stream", Short: "Stream operations"}

	tailCmd := &cobra.Command{
		Use:   "tail <name>",
		Short: "Stream entries to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if i, _ := cmd.Flags().GetUint64("index"); i > 0 {
				q.Set("i", strconv.FormatUint(i, 10))
			}
			if tail, _ := cmd.Flags().GetString("tail"); tail != "" {
				q.Set("tail", tail)
			}
			if since, _ := cmd.Flags().GetInt64("since"); since > 0 {
				q.Set("since", strconv.FormatInt(since, 10))
			}
			if n, _ := cmd.Flags().GetUint64("n"); n > 0 {
				q.Set("n", strconv.FormatUint(n, 10))
			}
			if noWait, _ := cmd.Flags().GetBool("nowait"); noWait {
				q.Set("nowait", "1")
			}
			if filter, _ := cmd.Flags().GetString("filter"); filter != "" {
				q.Set("filter", filter)
			}
			if flavor, _ := cmd.Flags().GetString("json"); flavor != "" {
				q.Set("json", flavor)
			}

			resp, err := http.Get(streamURL(apiURL(), args[0]) + "?" + q.Encode())
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned %s", resp.Status)
			}
			if id := resp.Header.Get("X-Current-Stream-Subscription-Id"); id != "" {
				fmt.Fprintf(os.Stderr, "subscription: %s\n", id)
			}
			sc := bufio.NewScanner(resp.Body)
			sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
			for sc.Scan() {
				fmt.Println(sc.Text())
			}
			return sc.Err()
		},
	}
	tailCmd.Flags().Uint64("index", 0, "Starting index")
	tailCmd.Flags().String("tail", "", "Start from the last N entries (-1 = from current end)")
	tailCmd.Flags().Int64("since", 0, "Start from entries with us >= since (epoch microseconds)")
	tailCmd.Flags().Uint64("n", 0, "Stop after N entries")
	tailCmd.Flags().Bool("nowait", false, "Return immediately when caught up")
	tailCmd.Flags().String("filter", "", "CEL filter expression")
	tailCmd.Flags().String("json", "", "JSON flavour: js|fs (default: indexed)")
	streamCmd.AddCommand(tailCmd)

	publishCmd := &cobra.Command{
		Use:   "publish <name> <json-entry>",
		Short: "Publish one entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Post(streamURL(apiURL(), args[0])+"/publish", "application/json", bytes.NewReader([]byte(args[1])))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(body))
			}
			fmt.Print(string(body))
			return nil
		},
	}
	streamCmd.AddCommand(publishCmd)

	sizeCmd := &cobra.Command{
		Use:   "size <name>",
		Short: "Print the entry count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(streamURL(apiURL(), args[0]) + "?sizeonly=1")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned %s", resp.Status)
			}
			io.Copy(os.Stdout, resp.Body)
			return nil
		},
	}
	streamCmd.AddCommand(sizeCmd)

	terminateCmd := &cobra.Command{
		Use:   "terminate <name> <subscription-id>",
		Short: "Cancel an HTTP subscription",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(streamURL(apiURL(), args[0]) + "?terminate=" + url.QueryEscape(args[1]))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			io.Copy(io.Discard, resp.Body)
			fmt.Println("status:", resp.Status)
			return nil
		},
	}
	streamCmd.AddCommand(terminateCmd)

	schemaCmd := &cobra.Command{
		Use:   "schema <name>",
		Short: "Print the stream schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			u := streamURL(apiURL(), args[0]) + "?schema=1"
			if format != "" {
				u += "&schema_format=" + url.QueryEscape(format)
			}
			resp, err := http.Get(u)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			io.Copy(os.Stdout, resp.Body)
			return nil
		},
		Args: cobra.ExactArgs(1),
	}
	schemaCmd.Flags().String("format", "", "Schema format key (empty, simple, or a language key)")
	streamCmd.AddCommand(schemaCmd)

	return streamCmd
}

func streamURL(base, name string) string {
	return base + "/v1/streams/" + url.PathEscape(name)
}
