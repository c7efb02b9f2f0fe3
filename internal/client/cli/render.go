package cli

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/lazydrop/internal/client/models"
	"github.com/dustin/go-humanize"
)

func renderToast(t models.Toast) string {
	var b strings.Builder
	switch t.Severity {
	case models.SeverityError:
		b.WriteString("[!] ")
	case models.SeveritySuccess:
		b.WriteString("[ok] ")
	default:
		b.WriteString("[i] ")
	}
	b.WriteString(t.Message)
	if t.Action != nil && t.Action.Navigate != "" {
		fmt.Fprintf(&b, " (%s: %s)", t.Action.Label, t.Action.Navigate)
	}
	return b.String()
}

// formatRemaining renders seconds as m:ss, or h:mm:ss past an hour.
func formatRemaining(sec int) string {
	if sec < 0 {
		sec = 0
	}
	h, m, s := sec/3600, sec/60%60, sec%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func formatFile(n int, f models.TransferredFile, me *models.Participant) string {
	from := "peer"
	if me != nil && f.UploaderID == me.ID {
		from = "you"
	}

	state := string(f.Status)
	switch {
	case f.Status == models.FileUploading:
		state = fmt.Sprintf("uploading %d%%", f.Progress)
	case f.DownloadedByMe:
		state = "saved"
	}
	if from == "you" && f.SeenByPeer {
		state += ", seen"
	}

	return fmt.Sprintf("%3d. %-32s %9s  from %-4s  %s  [%s]",
		n, f.Name, humanize.IBytes(uint64(f.Size)), from, state, f.Key.ID())
}

func formatNote(n models.Note, names map[string]string) string {
	who, ok := names[n.SenderID]
	if !ok {
		who = models.Participant{ID: n.SenderID}.Name()
	}
	line := fmt.Sprintf("<%s> %s", who, n.Content)
	if n.Optimistic {
		line += " (sending)"
	}
	return line
}

func formatParticipant(p models.Participant, me *models.Participant) string {
	var tags []string
	if p.IsOwner() {
		tags = append(tags, "owner")
	}
	if p.Guest {
		tags = append(tags, "guest")
	}
	if me != nil && p.ID == me.ID {
		tags = append(tags, "you")
	}
	if len(tags) == 0 {
		return "  " + p.Name()
	}
	return fmt.Sprintf("  %s (%s)", p.Name(), strings.Join(tags, ", "))
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
