package serve

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/skip2/go-qrcode"
)

// isWSL returns true if running inside Windows Subsystem for Linux
func isWSL() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	lower := strings.ToLower(string(data))
	return strings.Contains(lower, "microsoft") || strings.Contains(lower, "wsl")
}

// windowsLANIPs asks the Windows host for its LAN IPv4 addresses.
func windowsLANIPs() []string {
	out, err := exec.Command("powershell.exe", "-NoProfile", "-Command",
		`Get-NetIPAddress -AddressFamily IPv4 | Where-Object { $_.InterfaceAlias -notmatch 'Loopback' -and $_.InterfaceAlias -notmatch 'vEthernet' } | Select-Object -ExpandProperty IPAddress`,
	).Output()
	if err != nil {
		return nil
	}
	var ips []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		ip := strings.TrimSpace(line)
		if ip != "" && net.ParseIP(ip) != nil {
			ips = append(ips, ip)
		}
	}
	return ips
}

// lanIPs returns all non-loopback IPv4 addresses
func lanIPs() []string {
	var result []string
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return result
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			result = append(result, ipnet.IP.String())
		}
	}
	return result
}

// controlURLs lists the addresses a browser on the network can use.
func controlURLs(bind string, port int) []string {
	if bind != "" && bind != "0.0.0.0" && bind != "::" {
		return []string{fmt.Sprintf("http://%s:%d/", bind, port)}
	}
	var urls []string
	for _, ip := range lanIPs() {
		urls = append(urls, fmt.Sprintf("http://%s:%d/", ip, port))
	}
	return append(urls, fmt.Sprintf("http://localhost:%d/", port))
}

// printNetworkInfo prints reachable addresses for the server, optionally
// with a QR code for the first one.
func printNetworkInfo(w io.Writer, bind string, port int, withQR bool) {
	urls := controlURLs(bind, port)
	fmt.Fprintln(w, "  Control page:")
	for _, u := range urls {
		fmt.Fprintf(w, "    %s\n", u)
	}

	if isWSL() {
		if winIPs := windowsLANIPs(); len(winIPs) > 0 {
			fmt.Fprintln(w, "\n  WSL detected - Windows LAN IPs (forward the port first):")
			for _, ip := range winIPs {
				fmt.Fprintf(w, "    http://%s:%d/\n", ip, port)
			}
		}
	}

	if withQR && len(urls) > 0 {
		fmt.Fprintln(w)
		if err := writeQR(w, urls[0]); err != nil {
			fmt.Fprintf(w, "  (qr code unavailable: %v)\n", err)
		}
	}
}

// writeQR renders text as a QR code using ANSI background colors, two
// columns per module.
func writeQR(w io.Writer, text string) error {
	qr, err := qrcode.New(text, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("generating qr code: %w", err)
	}
	const (
		dark  = "\033[40m  \033[0m"
		light = "\033[47m  \033[0m"
	)
	var b strings.Builder
	for _, row := range qr.Bitmap() {
		for _, module := range row {
			if module {
				b.WriteString(dark)
			} else {
				b.WriteString(light)
			}
		}
		b.WriteString("\033[0m\n")
	}
	_, err = io.WriteString(w, b.String())
	return err
}
