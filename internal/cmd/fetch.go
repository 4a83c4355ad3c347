package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/yourneighborhoodchef/veilfetch/internal/client"
	"github.com/yourneighborhoodchef/veilfetch/internal/fingerprint"
	"github.com/yourneighborhoodchef/veilfetch/internal/proxy"
)

var (
	flagMethod     string
	flagData       string
	flagHeaders    []string
	flagProxies    []string
	flagShowStats  bool
	flagBodyToFile string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch URL",
	Short: "Fetch a URL disguised as organic browser traffic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configFromViper()
		if len(flagProxies) > 0 {
			cfg.Proxies = append(cfg.Proxies, flagProxies...)
			cfg.UseProxies = true
		}

		c := client.New(cfg, logger)
		defer c.Close()

		opts := &client.RequestOptions{
			Method:  strings.ToUpper(flagMethod),
			Headers: parseHeaderFlags(flagHeaders),
		}
		if flagData != "" {
			opts.Body = []byte(flagData)
			if opts.Method == "" {
				opts.Method = "POST"
			}
		}

		start := time.Now()
		out, err := c.Fetch(args[0], opts)
		if err != nil {
			return err
		}

		logger.Info("request settled",
			zap.Int("status", out.StatusCode),
			zap.Bool("success", out.Success),
			zap.Int("attempts", out.Attempts),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("proxy", out.ProxyUsed),
		)

		if flagBodyToFile != "" {
			if err := os.WriteFile(flagBodyToFile, out.Body, 0o644); err != nil {
				return fmt.Errorf("write body: %w", err)
			}
		} else {
			_, _ = os.Stdout.Write(out.Body)
		}

		if flagShowStats {
			printStats(c)
		}
		if !out.Success {
			return fmt.Errorf("request failed with status %d", out.StatusCode)
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVarP(&flagMethod, "method", "X", "", "HTTP method (default GET, POST with --data)")
	fetchCmd.Flags().StringVarP(&flagData, "data", "d", "", "request body")
	fetchCmd.Flags().StringArrayVarP(&flagHeaders, "header", "H", nil, "extra header, 'Name: value' (repeatable)")
	fetchCmd.Flags().StringArrayVar(&flagProxies, "proxy", nil, "proxy endpoint, scheme://[user:pass@]host:port or host:port (repeatable)")
	fetchCmd.Flags().BoolVar(&flagShowStats, "stats", false, "print client and rate-limiter stats after the request")
	fetchCmd.Flags().StringVarP(&flagBodyToFile, "output", "o", "", "write the response body to a file instead of stdout")

	fetchCmd.Flags().Int("retries", 3, "max retries on transient failures")
	fetchCmd.Flags().Int("rps", 2, "requests per second budget")
	fetchCmd.Flags().Int("rpm", 30, "requests per minute budget")
	fetchCmd.Flags().Int("timeout-ms", 30000, "per-attempt timeout in milliseconds")
	fetchCmd.Flags().Bool("randomize-headers", false, "shuffle header emission order")
	fetchCmd.Flags().Bool("cookies", false, "persist session cookies across requests")
	_ = viper.BindPFlag("max_retries", fetchCmd.Flags().Lookup("retries"))
	_ = viper.BindPFlag("requests_per_second", fetchCmd.Flags().Lookup("rps"))
	_ = viper.BindPFlag("requests_per_minute", fetchCmd.Flags().Lookup("rpm"))
	_ = viper.BindPFlag("timeout_ms", fetchCmd.Flags().Lookup("timeout-ms"))
	_ = viper.BindPFlag("randomize_headers", fetchCmd.Flags().Lookup("randomize-headers"))
	_ = viper.BindPFlag("persist_cookies", fetchCmd.Flags().Lookup("cookies"))

	rootCmd.AddCommand(fetchCmd)
}

// configFromViper maps the merged flag/env/file settings onto the
// client config.
func configFromViper() client.Config {
	cfg := client.DefaultConfig()
	cfg.Proxies = viper.GetStringSlice("proxies")
	cfg.UseProxies = viper.GetBool("use_proxies") || len(cfg.Proxies) > 0
	cfg.ProxyRotation = proxy.Policy(viper.GetString("proxy_rotation"))
	cfg.MaxProxyFailures = viper.GetInt("max_proxy_failures")
	cfg.RequestsPerMinute = viper.GetInt("requests_per_minute")
	cfg.RequestsPerSecond = viper.GetInt("requests_per_second")
	cfg.MinDelayMs = viper.GetInt("min_delay_ms")
	cfg.MaxDelayMs = viper.GetInt("max_delay_ms")
	cfg.MaxRetries = viper.GetInt("max_retries")
	cfg.RetryDelayMs = viper.GetInt("retry_delay_ms")
	cfg.RetryBackoffMultiplier = viper.GetFloat64("retry_backoff_multiplier")
	cfg.MaxRetryDelayMs = viper.GetInt("max_retry_delay_ms")
	if statuses := viper.GetIntSlice("retryable_statuses"); len(statuses) > 0 {
		cfg.RetryableStatuses = statuses
	}
	cfg.RotateFingerprint = viper.GetBool("rotate_fingerprint")
	cfg.FingerprintRotation = fingerprint.Policy(viper.GetString("fingerprint_rotation"))
	cfg.RandomizeHeaders = viper.GetBool("randomize_headers")
	cfg.AddJitter = viper.GetBool("add_jitter")
	cfg.JitterPercent = viper.GetFloat64("jitter_percent")
	cfg.TimeoutMs = viper.GetInt("timeout_ms")
	cfg.ConnectTimeoutMs = viper.GetInt("connect_timeout_ms")
	cfg.PersistCookies = viper.GetBool("persist_cookies")
	cfg.SessionID = viper.GetString("session_id")
	return cfg
}

// parseHeaderFlags turns "Name: value" flags into a header map.
func parseHeaderFlags(raw []string) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	headers := make(map[string]string, len(raw))
	for _, entry := range raw {
		name, value, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return headers
}

func printStats(c *client.Client) {
	st := c.Stats()
	rl := c.RateLimiterStats()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stderr)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Total requests", st.TotalRequests},
		{"Successful", st.Successful},
		{"Failed", st.Failed},
		{"Retries", st.Retries},
		{"Avg response time", st.AvgResponseTime.Round(time.Millisecond)},
		{"Dispatched (total)", rl.TotalDispatched},
		{"Dispatched (last 1s)", rl.InLastSecond},
		{"Dispatched (last 60s)", rl.InLastMinute},
		{"Queue length", rl.QueueLength},
	})
	t.Render()
}
