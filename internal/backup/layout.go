package backup

import (
	"strings"
	"time"

	"github.com/colmadogutierrez/debtbook/pkg/config"
)

// remoteLayout names the remote tree: <root>/<date>/<date>.json.
type remoteLayout struct {
	root       string
	dateLayout string
}

func newRemoteLayout(cfg config.BackupConfig) remoteLayout {
	layout := remoteLayout{root: strings.TrimSpace(cfg.RootFolder), dateLayout: cfg.DateLayout}
	if layout.root == "" {
		layout.root = DefaultRootFolder
	}
	if layout.dateLayout == "" {
		layout.dateLayout = DefaultDateLayout
	}
	return layout
}

func (l remoteLayout) dailyName(now time.Time) string {
	return now.Format(l.dateLayout)
}

func (l remoteLayout) fileName(daily string) string {
	return daily + ".json"
}
