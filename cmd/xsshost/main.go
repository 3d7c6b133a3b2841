package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gogpu/gg"

	"xsshost/internal/fonts"
	"xsshost/internal/hack"
)

var (
	flagHack           = flag.String("hack", "testcard", "Renderer to run (see 'xsshost list')")
	flagPrefs          = flag.String("prefs", "", "Preference file (JSON); empty keeps preferences in memory")
	flagSize           = flag.String("size", "1280x720", "Surface size as WxH")
	flagWindow         = flag.Bool("window", false, "Render into an X11 window instead of an offscreen surface")
	flagDisplay        = flag.String("display", "", "X11 display for --window (default $DISPLAY)")
	flagStartX         = flag.Bool("start-x", false, "Start a private Xvfb for --window")
	flagAddr           = flag.String("addr", "127.0.0.1:8080", "Preview server listen address (empty disables the server)")
	flagToken          = flag.String("token", "", "Bearer token for the preview server (required with --addr)")
	flagFPS            = flag.Int("fps", 10, "Preview frame rate")
	flagQuality        = flag.Int("quality", 80, "Preview JPEG quality (1-100)")
	flagOfferTimeout   = flag.Duration("offer-timeout", 10*time.Second, "Timeout for WHEP offer processing and ICE gathering")
	flagAllowOrigins   = flag.String("allow-origins", "", "Comma-separated CORS allowlist (in addition to same-origin). Empty = same-origin only")
	flagAuthFailLimit  = flag.Int("auth-fail-limit", 10, "Max failed auth attempts per client IP per window")
	flagAuthFailWindow = flag.Duration("auth-fail-window", time.Minute, "Window for auth failure rate limiting")
	flagTLS            = flag.Bool("tls", false, "Enable TLS with auto-generated self-signed certificate")
	flagTLSCert        = flag.String("tls-cert", "", "Path to TLS certificate file (PEM)")
	flagTLSKey         = flag.String("tls-key", "", "Path to TLS private key file (PEM)")
	flagTLSHosts       = flag.String("tls-hosts", "", "Extra comma-separated names or addresses for the self-signed certificate")
	flagFontDir        = flag.String("font-dir", "", "Comma-separated font directories (default: system font directories)")
	flagImageDir       = flag.String("image-dir", "", "Comma-separated image directories for renderers that load images")
	flagSeed           = flag.Int64("seed", 0, "Random seed for renderers (0 = time-based)")
	flagVerbose        = flag.Bool("v", false, "Verbose rasteriser logging")
	flagOpts           = options{}
)

func init() {
	flag.Var(flagOpts, "opt", "Renderer option as key=value (repeatable)")
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *flagVerbose {
		gg.SetLogger(slog.Default())
	}

	cmd, args := "run", []string(nil)
	if flag.NArg() > 0 {
		cmd, args = flag.Arg(0), flag.Args()[1:]
	}

	hack.Builtin()

	var err error
	switch cmd {
	case "run":
		err = runHost()
	case "list":
		err = listHacks(os.Stdout)
	case "fonts":
		err = listFonts(os.Stdout)
	case "snapshot":
		err = runSnapshot(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `usage: xsshost [flags] [run | list | fonts | snapshot [-frames N] [-o file.png|-]]

flags:
`)
	flag.PrintDefaults()
}

func listHacks(w *os.File) error {
	for _, name := range hack.Names() {
		e, _ := hack.Lookup(name)
		fmt.Fprintf(w, "%-12s %s\n", name, e.Description)
		for _, k := range sortedKeys(e.Defaults) {
			fmt.Fprintf(w, "%-12s   %s=%q\n", "", k, e.Defaults[k])
		}
	}
	return nil
}

func listFonts(w *os.File) error {
	cat, err := fonts.Scan(splitList(*flagFontDir)...)
	if err != nil {
		return err
	}
	for _, fam := range cat.Families() {
		path, _ := cat.Lookup(fam)
		fmt.Fprintf(w, "%-32s %s\n", fam, path)
	}
	return nil
}

// options collects repeated -opt key=value flags.
type options map[string]string

func (o options) String() string {
	parts := make([]string, 0, len(o))
	for _, k := range sortedKeys(o) {
		parts = append(parts, k+"="+o[k])
	}
	return strings.Join(parts, ",")
}

func (o options) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("want key=value, got %q", s)
	}
	o[k] = v
	return nil
}

func parseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("size %q: want WxH", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("size %q: must be positive", s)
	}
	return w, h, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
