// variantctl is a CLI tool for driving variant-sync sessions.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	variantctl open -server URL -product /products/tee [-section ID] [-update-url true|false] [-force-refetch]
//	variantctl get -server URL -id <session-id>
//	variantctl select -server URL -id <session-id> [-option VALUE]... [-variant ID]
//	variantctl cart -server URL -id <session-id> [-variant ID]
//	variantctl star -server URL -id <session-id> -index N
//	variantctl html -server URL -id <session-id>
//	variantctl close -server URL -id <session-id>
//
// Examples:
//
//	ID=$(variantctl open -product /products/tee -q)
//	variantctl select -id $ID -option Blue -option Small
//	variantctl cart -id $ID
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	serverURL string
	quiet     bool
	noColor   bool
	verbose   bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "open":
		runOpen(args)
	case "get":
		runGet(args)
	case "select":
		runSelect(args)
	case "cart":
		runCart(args)
	case "star":
		runStar(args)
	case "html":
		runHTML(args)
	case "close":
		runClose(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `variantctl - variant-sync session tool

Usage:
  variantctl <command> [options]

Commands:
  open      Load a product page into a new session
  get       Show the session's product state
  select    Pick option values or a variant
  cart      Signal a cart update (refreshes quantity rules)
  star      Toggle a review star
  html      Print the live document
  close     Close the session

Examples:
  # Open a session and capture its ID
  ID=$(variantctl open -server http://localhost:8080 -product /products/tee -q)

  # Pick options
  variantctl select -id "$ID" -option Blue -option Small

  # Jump to a variant directly
  variantctl select -id "$ID" -variant 44012345

Run 'variantctl <command> -h' for command-specific options.
`)
}

// multiFlag collects a repeated string flag.
type multiFlag []string

func (m *multiFlag) String() string     { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error { *m = append(*m, v); return nil }

// commonFlags registers the flags every command takes.
func commonFlags(fs *flag.FlagSet) {
	fs.StringVar(&serverURL, "server", envOr("VARIANT_SYNC_URL", "http://localhost:8080"), "variant-sync base URL")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the essential value")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
}

func parseFlags(fs *flag.FlagSet, usage string, args []string) {
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: variantctl %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	fs.Parse(args)
	if noColor {
		disableColors()
	}
}

func requireID(fs *flag.FlagSet, id string) {
	if id == "" {
		fs.Usage()
		os.Exit(1)
	}
}

// =============================================================================
// OPEN COMMAND
// =============================================================================

func runOpen(args []string) {
	fs := flag.NewFlagSet("open", flag.ExitOnError)
	commonFlags(fs)
	var product, section, updateURL, themeVersion string
	var forceRefetch bool
	fs.StringVar(&product, "product", "", "Product URL path (required)")
	fs.StringVar(&section, "section", "", "Load only this section")
	fs.StringVar(&updateURL, "update-url", "", "true to rewrite the page address, false to freeze it")
	fs.BoolVar(&forceRefetch, "force-refetch", false, "Always fetch a fragment")
	fs.StringVar(&themeVersion, "theme-version", "", "Theme version (option_values needs v13.0.0+)")
	parseFlags(fs, "open -product PATH [options]", args)

	if product == "" {
		fs.Usage()
		os.Exit(1)
	}

	header, err := storefrontContext(section, updateURL, forceRefetch, themeVersion)
	if err != nil {
		fatal("Invalid options: %v", err)
	}

	resp, err := doRequest("POST", "/sessions", map[string]interface{}{"product_url": product}, header)
	if err != nil {
		fatal("Failed to open session: %v", err)
	}

	id, _ := resp["id"].(string)
	if quiet {
		fmt.Println(id)
		return
	}
	printSuccess("Session opened")
	fmt.Printf("  ID: %s%s%s\n", colorCyan, id, colorReset)
	printProduct(resp)
}

// storefrontContext encodes the block settings as a Storefront-Context
// dictionary; empty when none are set.
func storefrontContext(section, updateURL string, forceRefetch bool, themeVersion string) (string, error) {
	dict := httpsfv.NewDictionary()
	if section != "" {
		dict.Add("section", httpsfv.NewItem(section))
	}
	switch updateURL {
	case "":
	case "true", "false":
		dict.Add("update-url", httpsfv.NewItem(updateURL == "true"))
	default:
		return "", fmt.Errorf("-update-url must be true or false")
	}
	if forceRefetch {
		dict.Add("force-refetch", httpsfv.NewItem(true))
	}
	if themeVersion != "" {
		dict.Add("theme-version", httpsfv.NewItem(themeVersion))
	}
	if len(dict.Names()) == 0 {
		return "", nil
	}
	return httpsfv.Marshal(dict)
}

// =============================================================================
// GET COMMAND
// =============================================================================

func runGet(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	commonFlags(fs)
	var id string
	fs.StringVar(&id, "id", "", "Session ID (required)")
	parseFlags(fs, "get -id <session-id> [options]", args)
	requireID(fs, id)

	resp, err := doRequest("GET", "/sessions/"+url.PathEscape(id), nil, "")
	if err != nil {
		fatal("Failed to get session: %v", err)
	}

	if quiet {
		fmt.Println(productField(resp, "variant_id"))
		return
	}
	printSuccess("Session retrieved")
	printProduct(resp)
}

// =============================================================================
// SELECT COMMAND
// =============================================================================

func runSelect(args []string) {
	fs := flag.NewFlagSet("select", flag.ExitOnError)
	commonFlags(fs)
	var id, variantID, product string
	var options multiFlag
	fs.StringVar(&id, "id", "", "Session ID (required)")
	fs.Var(&options, "option", "Option value, in option order (repeatable)")
	fs.StringVar(&variantID, "variant", "", "Clicked variant ID")
	fs.StringVar(&product, "product", "", "Product URL when the option links to another product")
	parseFlags(fs, "select -id <session-id> -option VALUE... [options]", args)
	requireID(fs, id)

	if len(options) == 0 && variantID == "" {
		fatal("Provide at least one -option or a -variant")
	}

	body := map[string]interface{}{}
	if len(options) > 0 {
		body["selection"] = []string(options)
	}
	if variantID != "" {
		body["variant_id"] = variantID
	}
	if product != "" {
		body["product_url"] = product
	}

	resp, err := doRequest("POST", "/sessions/"+url.PathEscape(id)+"/options", body, "")
	if err != nil {
		fatal("Failed to select options: %v", err)
	}

	if quiet {
		fmt.Println(productField(resp, "variant_id"))
		return
	}
	printSuccess("Options applied")
	printProduct(resp)
}

// =============================================================================
// CART COMMAND
// =============================================================================

func runCart(args []string) {
	fs := flag.NewFlagSet("cart", flag.ExitOnError)
	commonFlags(fs)
	var id, variantID string
	fs.StringVar(&id, "id", "", "Session ID (required)")
	fs.StringVar(&variantID, "variant", "", "Variant whose cart line changed")
	parseFlags(fs, "cart -id <session-id> [options]", args)
	requireID(fs, id)

	body := map[string]interface{}{"source": "variantctl"}
	if variantID != "" {
		body["variant_id"] = variantID
	}

	resp, err := doRequest("POST", "/sessions/"+url.PathEscape(id)+"/cart", body, "")
	if err != nil {
		fatal("Failed to signal cart update: %v", err)
	}

	printSuccess("Quantity rules refreshed")
	printProduct(resp)
}

// =============================================================================
// STAR COMMAND
// =============================================================================

func runStar(args []string) {
	fs := flag.NewFlagSet("star", flag.ExitOnError)
	commonFlags(fs)
	var id string
	var index int
	fs.StringVar(&id, "id", "", "Session ID (required)")
	fs.IntVar(&index, "index", 0, "Star index")
	parseFlags(fs, "star -id <session-id> -index N", args)
	requireID(fs, id)

	resp, err := doRequest("POST", fmt.Sprintf("/sessions/%s/stars/%d", url.PathEscape(id), index), nil, "")
	if err != nil {
		fatal("Failed to toggle star: %v", err)
	}

	color, _ := resp["color"].(string)
	if quiet {
		fmt.Println(color)
		return
	}
	printSuccess("Star %d is now %s", index, color)
}

// =============================================================================
// HTML COMMAND
// =============================================================================

func runHTML(args []string) {
	fs := flag.NewFlagSet("html", flag.ExitOnError)
	commonFlags(fs)
	var id string
	fs.StringVar(&id, "id", "", "Session ID (required)")
	parseFlags(fs, "html -id <session-id>", args)
	requireID(fs, id)

	resp, err := client.Get(serverURL + "/sessions/" + url.PathEscape(id) + "/html")
	if err != nil {
		fatal("Failed to fetch document: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		fatal("HTTP %d: %s", resp.StatusCode, string(body))
	}
	io.Copy(os.Stdout, resp.Body)
}

// =============================================================================
// CLOSE COMMAND
// =============================================================================

func runClose(args []string) {
	fs := flag.NewFlagSet("close", flag.ExitOnError)
	commonFlags(fs)
	var id string
	fs.StringVar(&id, "id", "", "Session ID (required)")
	parseFlags(fs, "close -id <session-id>", args)
	requireID(fs, id)

	if _, err := doRequest("DELETE", "/sessions/"+url.PathEscape(id), nil, ""); err != nil {
		fatal("Failed to close session: %v", err)
	}
	printSuccess("Session closed")
}

// =============================================================================
// HTTP
// =============================================================================

func doRequest(method, path string, body interface{}, storefrontHeader string) (map[string]interface{}, error) {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, serverURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if storefrontHeader != "" {
		req.Header.Set("Storefront-Context", storefrontHeader)
	}

	if !quiet {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if !quiet {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	result := map[string]interface{}{}
	if len(respBody) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return result, nil
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func productField(resp map[string]interface{}, key string) string {
	product, _ := resp["product"].(map[string]interface{})
	if v, ok := product[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func printProduct(resp map[string]interface{}) {
	if quiet {
		return
	}
	product, ok := resp["product"].(map[string]interface{})
	if !ok {
		return
	}

	fmt.Printf("  Variant: %s%s%s", colorCyan, productField(resp, "variant_id"), colorReset)
	if title := productField(resp, "selected_title"); title != "" {
		fmt.Printf(" (%s)", title)
	}
	fmt.Println()
	if price := productField(resp, "price"); price != "" {
		fmt.Printf("  Price: %s%s%s\n", colorGreen, price, colorReset)
	}
	if disabled, _ := product["submit_disabled"].(bool); disabled {
		fmt.Printf("  Submit: %s%s%s\n", colorYellow, productField(resp, "submit_label"), colorReset)
	}
	if u := productField(resp, "visible_url"); u != "" {
		fmt.Printf("  URL: %s\n", u)
	}
	if media, ok := product["media"].([]interface{}); ok && len(media) > 0 {
		fmt.Printf("  Media: %v (active %s)\n", media, productField(resp, "active_media"))
	}
	if q, ok := product["quantity"].(map[string]interface{}); ok {
		fmt.Printf("  Quantity: min %v max %v value %v\n", q["min"], orDash(q["max"]), q["value"])
	}
	if msg := productField(resp, "last_error"); msg != "" {
		printError("%s", msg)
	}
}

func orDash(v interface{}) interface{} {
	if v == nil {
		return "-"
	}
	return v
}

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	if len(data) == 0 {
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}

	output := pretty.String()
	if !verbose {
		lines := strings.Split(output, "\n")
		if len(lines) > 30 {
			lines = append(lines[:25], fmt.Sprintf("%s  %s(%d more lines, use -v for full output)%s", prefix, colorGray, len(lines)-25, colorReset))
			output = strings.Join(lines, "\n")
		}
	}
	fmt.Println(output)
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printError(format string, args ...interface{}) {
	fmt.Printf("%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
