package keyserver

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/labstack/gommon/color"
)

func banner(version string, port int, id string, publicKey []byte, packageID string, trusted []string) string {
	var sb strings.Builder
	sb.WriteString("Server   ")
	sb.WriteString(color.Grey(id))
	sb.WriteString("\nKey      ")
	sb.WriteString(color.Grey("0x" + hex.EncodeToString(publicKey)))
	sb.WriteString("\nPackage  ")
	sb.WriteString(color.Grey(packageID))
	for i, addr := range trusted {
		if i == 0 {
			sb.WriteString("\nSigners  ")
		} else {
			sb.WriteString("\n         ")
		}
		sb.WriteString(color.Grey(addr))
	}

	return fmt.Sprintf(`
%s dealvault key server %s
------------------------------
%s
------------------------------
⇨ HTTP server started on %s`,
		color.Cyan("⬢"),
		color.Red(version),
		sb.String(),
		color.Green(fmt.Sprintf("http://localhost:%d", port)),
	)
}
