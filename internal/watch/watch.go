// Package watch is a live terminal dashboard over the admin API: governor
// health, the current session's counters, recent session history, and the
// rolling quality report, refreshed on a tick.
package watch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"

	"github.com/kestrelworks/gleaner/internal/api"
	"github.com/kestrelworks/gleaner/internal/governor"
	"github.com/kestrelworks/gleaner/internal/metrics"
)

const refreshInterval = 3 * time.Second

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Padding(0, 1)

	healthyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("28")). // green
			Padding(0, 1)

	warningStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("220")). // yellow
			Padding(0, 1)

	criticalStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("160")). // red
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(18)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	rowHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("160"))
)

// snapshot is one refresh of everything the dashboard shows.
type snapshot struct {
	Health  governor.Health
	Status  api.StatusResponse
	Quality metrics.Report
	At      time.Time
}

// Client fetches dashboard snapshots from the admin API.
type Client struct {
	http *resty.Client
	base string
}

// NewClient builds a Client against the admin address, e.g.
// "http://localhost:8085".
func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().SetTimeout(5 * time.Second),
		base: strings.TrimRight(baseURL, "/"),
	}
}

func (c *Client) fetch(ctx context.Context) (snapshot, error) {
	snap := snapshot{At: time.Now()}

	// /health answers 503 when critical; the body is the payload either way.
	if _, err := c.http.R().SetContext(ctx).
		SetResult(&snap.Health).
		SetError(&snap.Health).
		Get(c.base + "/health"); err != nil {
		return snapshot{}, fmt.Errorf("fetch health: %w", err)
	}
	if resp, err := c.http.R().SetContext(ctx).SetResult(&snap.Status).Get(c.base + "/status"); err != nil {
		return snapshot{}, fmt.Errorf("fetch status: %w", err)
	} else if resp.IsError() {
		return snapshot{}, fmt.Errorf("fetch status: HTTP %d", resp.StatusCode())
	}
	if resp, err := c.http.R().SetContext(ctx).SetResult(&snap.Quality).Get(c.base + "/quality"); err != nil {
		return snapshot{}, fmt.Errorf("fetch quality: %w", err)
	} else if resp.IsError() {
		return snapshot{}, fmt.Errorf("fetch quality: HTTP %d", resp.StatusCode())
	}
	return snap, nil
}

type tickMsg time.Time

type snapshotMsg struct {
	snap snapshot
	err  error
}

type watchModel struct {
	client   *Client
	viewport viewport.Model
	snap     snapshot
	fetchErr string
	width    int
	height   int
	ready    bool
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m watchModel) fetchCmd() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshInterval)
		defer cancel()
		snap, err := client.fetch(ctx)
		return snapshotMsg{snap: snap, err: err}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = m.width
		m.viewport.Height = m.height - 2 // status bar
		m.viewport.SetContent(m.renderBody())
		m.ready = true
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetchCmd(), tickCmd())

	case snapshotMsg:
		if msg.err != nil {
			m.fetchErr = msg.err.Error()
		} else {
			m.fetchErr = ""
			m.snap = msg.snap
		}
		m.viewport.SetContent(m.renderBody())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetchCmd()
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m watchModel) View() string {
	if !m.ready {
		return "loading..."
	}
	bar := statusBarStyle.Width(m.width).Render(
		fmt.Sprintf("q quit · r refresh · updated %s", m.snap.At.Format("15:04:05")))
	return m.viewport.View() + "\n" + bar
}

func healthBadge(h governor.Health) string {
	switch h.Status {
	case governor.Critical:
		return criticalStyle.Render("CRITICAL")
	case governor.Warning:
		return warningStyle.Render("WARNING")
	default:
		return healthyStyle.Render("HEALTHY")
	}
}

func (m watchModel) renderBody() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("gleaner") + "  " + healthBadge(m.snap.Health) + "\n")
	if m.fetchErr != "" {
		b.WriteString(errStyle.Render("refresh failed: "+m.fetchErr) + "\n")
	}

	h := m.snap.Health
	b.WriteString(sectionStyle.Render("Governor") + "\n")
	if h.KillSwitch {
		b.WriteString(labelStyle.Render("kill switch") + errStyle.Render("ON: "+h.KillReason) + "\n")
	}
	b.WriteString(labelStyle.Render("error budget") + fmt.Sprintf("%d / %d", h.ErrorCount, h.ErrorBudget) + "\n")
	b.WriteString(labelStyle.Render("rolling quality") +
		fmt.Sprintf("%.1f over %d samples", h.RollingQuality, h.QualitySamples) + "\n")
	if len(h.DisabledSites) > 0 {
		b.WriteString(labelStyle.Render("disabled sites") + strings.Join(h.DisabledSites, ", ") + "\n")
	}

	b.WriteString(sectionStyle.Render("Current session") + "\n")
	if cur := m.snap.Status.Current; cur != nil {
		b.WriteString(labelStyle.Render("status") + cur.Status + "\n")
		b.WriteString(labelStyle.Render("trigger") + cur.Trigger + "\n")
		b.WriteString(labelStyle.Render("users") + fmt.Sprintf("%d", cur.UsersProcessed) + "\n")
		b.WriteString(labelStyle.Render("jobs saved") +
			fmt.Sprintf("%d (%d skipped, %d errors)", cur.JobsSaved, cur.JobsSkipped, cur.Errors) + "\n")
		if len(cur.SiteCounts) > 0 {
			b.WriteString(labelStyle.Render("per site") + siteCountsLine(cur.SiteCounts) + "\n")
		}
		if cur.Reason != "" {
			b.WriteString(labelStyle.Render("reason") + cur.Reason + "\n")
		}
	} else {
		b.WriteString(dimStyle.Render("none yet") + "\n")
	}

	b.WriteString(sectionStyle.Render("Recent sessions") + "\n")
	if len(m.snap.Status.Recent) == 0 {
		b.WriteString(dimStyle.Render("no history") + "\n")
	} else {
		b.WriteString(rowHeaderStyle.Render(fmt.Sprintf("%-17s %-20s %-10s %6s %7s", "started", "trigger", "status", "saved", "errors")) + "\n")
		for _, sess := range m.snap.Status.Recent {
			b.WriteString(fmt.Sprintf("%-17s %-20s %-10s %6d %7d\n",
				sess.StartedAt.Local().Format("2006-01-02 15:04"),
				sess.Trigger, sess.Status, sess.JobsSaved, sess.Errors))
		}
	}

	b.WriteString(sectionStyle.Render("Quality ("+m.snap.Quality.Window+")") + "\n")
	if len(m.snap.Quality.PerSite) == 0 {
		b.WriteString(dimStyle.Render("no samples in window") + "\n")
	} else {
		b.WriteString(rowHeaderStyle.Render(fmt.Sprintf("%-16s %7s %7s %8s  %s", "site", "parsed", "valid", "quality", "top errors")) + "\n")
		for _, name := range sortedSites(m.snap.Quality.PerSite) {
			site := m.snap.Quality.PerSite[name]
			b.WriteString(fmt.Sprintf("%-16s %7d %7d %8.1f  %s\n",
				name, site.Parsed, site.Valid, site.Average, strings.Join(site.TopErrors, "; ")))
		}
	}

	return b.String()
}

func siteCountsLine(counts map[string]int) string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, counts[name]))
	}
	return strings.Join(parts, "  ")
}

func sortedSites(perSite map[string]metrics.SiteReport) []string {
	names := make([]string, 0, len(perSite))
	for name := range perSite {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run starts the dashboard against the admin API at baseURL and blocks until
// the user quits.
func Run(baseURL string) error {
	m := watchModel{
		client:   NewClient(baseURL),
		viewport: viewport.New(80, 24),
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
