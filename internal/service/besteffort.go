package service

import (
	"log"
	"strings"
)

// bestEffort runs fn on its own goroutine and logs failures instead of
// propagating them. Instrumentation never affects the primary outcome.
func bestEffort(name string, fn func() error) {
	go func() {
		if err := fn(); err != nil {
			log.Printf("Best-effort %s failed: %v", name, err)
		}
	}()
}

// injectTrackingPixel appends an invisible image to the HTML body, before
// </body> when one exists.
func injectTrackingPixel(html string, pixelURL string) string {
	pixel := `<img src="` + pixelURL + `" width="1" height="1" style="display:none" alt=""/>`
	if idx := strings.LastIndex(strings.ToLower(html), "</body>"); idx >= 0 {
		return html[:idx] + pixel + html[idx:]
	}
	return html + pixel
}
