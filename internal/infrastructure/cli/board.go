package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/boardsync/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/boardsync/pkg/application"
	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
	"github.com/felixgeelhaar/boardsync/pkg/storage"
)

var boardFilter struct {
	search   string
	priority string
	assignee string
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Interactive board that follows live updates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		services, project, err := loadBoard(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		client, err := services.Push(project, nil)
		if err != nil {
			return NewCLIError("cannot open the push channel", "Check push_url with 'boardsync config show'", err)
		}
		m := newBoardModel(ctx, services, project, board.TaskFilter{
			Search:     boardFilter.search,
			Priority:   board.Priority(boardFilter.priority),
			AssigneeID: boardFilter.assignee,
		})
		m.connection = client.State

		p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
		changed := func(storage.Change) { p.Send(boardChangedMsg{}) }
		defer services.Store.Subscribe(changed)()
		defer services.Registry.Subscribe(changed)()
		go func() { _ = client.Run(ctx) }()

		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			return fmt.Errorf("board run failed: %w", err)
		}
		return nil
	},
}

func init() {
	boardCmd.Flags().StringVarP(&boardFilter.search, "search", "s", "", "only tasks whose title or description contains this text")
	boardCmd.Flags().StringVar(&boardFilter.priority, "priority", "", "only tasks with this priority")
	boardCmd.Flags().StringVar(&boardFilter.assignee, "assignee", "", "only tasks assigned to this user id")
	RootCmd.AddCommand(boardCmd)
}

// Styles
var (
	columnStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1).
			Width(26)

	focusedColumnStyle = columnStyle.
				BorderForeground(lipgloss.Color("#7D56F4")).
				Width(44)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			PaddingLeft(1).
			PaddingRight(1)

	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

type boardKeyMap struct {
	Left     key.Binding
	Right    key.Binding
	Up       key.Binding
	Down     key.Binding
	MovePrev key.Binding
	MoveNext key.Binding
	Refresh  key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func (k boardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Left, k.Right, k.MovePrev, k.MoveNext, k.Refresh, k.Help, k.Quit}
}

func (k boardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Left, k.Right, k.Up, k.Down},
		{k.MovePrev, k.MoveNext, k.Refresh},
		{k.Help, k.Quit},
	}
}

var boardKeys = boardKeyMap{
	Left:     key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "prev column")),
	Right:    key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "next column")),
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	MovePrev: key.NewBinding(key.WithKeys("["), key.WithHelp("[", "move task left")),
	MoveNext: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "move task right")),
	Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// boardChangedMsg is sent whenever the task store or the stage registry changes.
type boardChangedMsg struct{}

// opDoneMsg reports a finished background operation with the notice to show
// on success.
type opDoneMsg struct {
	notice string
	err    error
}

type boardModel struct {
	ctx        context.Context
	services   *wiring.AppServices
	project    string
	filter     board.TaskFilter
	connection func() string

	cols   []application.Column
	focus  int
	table  table.Model
	help   help.Model
	notice string
	err    error
}

func newBoardModel(ctx context.Context, services *wiring.AppServices, project string, filter board.TaskFilter) boardModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 10},
			{Title: "Task", Width: 22},
			{Title: "Pri", Width: 6},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))
	t.SetStyles(s)

	m := boardModel{
		ctx:      ctx,
		services: services,
		project:  project,
		filter:   filter,
		table:    t,
		help:     help.New(),
	}
	m.reload()
	return m
}

func (m *boardModel) reload() {
	cols, err := m.services.Tasks.Columns(m.project, m.filter)
	if err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.cols = cols
	if m.focus >= len(cols) {
		m.focus = len(cols) - 1
	}
	if m.focus < 0 {
		m.focus = 0
	}
	m.syncTable()
}

func (m *boardModel) syncTable() {
	var rows []table.Row
	if m.focus < len(m.cols) {
		for _, t := range m.cols[m.focus].Tasks {
			rows = append(rows, table.Row{t.ID, t.Title, string(t.Priority)})
		}
	}
	cursor := m.table.Cursor()
	m.table.SetRows(rows)
	if cursor >= len(rows) {
		cursor = len(rows) - 1
	}
	if cursor < 0 {
		cursor = 0
	}
	m.table.SetCursor(cursor)
}

func (m boardModel) selectedTask() string {
	row := m.table.SelectedRow()
	if len(row) == 0 {
		return ""
	}
	return row[0]
}

// move sends the selected task to the neighbouring active stage. The store
// changes right away, so the board redraws before the server answers.
func (m boardModel) move(delta int) tea.Cmd {
	taskID := m.selectedTask()
	target := m.focus + delta
	if taskID == "" || target < 0 || target >= len(m.cols) {
		return nil
	}
	stage := m.cols[target].Stage
	title := m.table.SelectedRow()[1]
	tasks, ctx := m.services.Tasks, m.ctx
	return func() tea.Msg {
		if _, err := tasks.MoveTask(ctx, taskID, stage.ID); err != nil {
			return opDoneMsg{err: err}
		}
		return opDoneMsg{notice: fmt.Sprintf("Moved %s to %s", title, stage.Name)}
	}
}

func (m boardModel) refresh() tea.Cmd {
	tasks, ctx, project := m.services.Tasks, m.ctx, m.project
	return func() tea.Msg {
		return opDoneMsg{notice: "Board refreshed", err: tasks.Refresh(ctx, project)}
	}
}

func (m boardModel) Init() tea.Cmd { return nil }

func (m boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
	case boardChangedMsg:
		m.reload()
		return m, nil
	case opDoneMsg:
		if msg.err != nil {
			m.notice = errorStyle.Render(MapError(msg.err).Error())
		} else {
			m.notice = noticeStyle.Render(msg.notice)
		}
		m.reload()
		return m, nil
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, boardKeys.Quit):
			return m, tea.Quit
		case key.Matches(msg, boardKeys.Left):
			if m.focus > 0 {
				m.focus--
				m.syncTable()
			}
			return m, nil
		case key.Matches(msg, boardKeys.Right):
			if m.focus < len(m.cols)-1 {
				m.focus++
				m.syncTable()
			}
			return m, nil
		case key.Matches(msg, boardKeys.MovePrev):
			return m, m.move(-1)
		case key.Matches(msg, boardKeys.MoveNext):
			return m, m.move(1)
		case key.Matches(msg, boardKeys.Refresh):
			return m, m.refresh()
		case key.Matches(msg, boardKeys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m boardModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error loading board: %v\nPress q to quit.", m.err)
	}

	state := "offline"
	if m.connection != nil {
		state = m.connection()
	}
	header := headerStyle.Render(fmt.Sprintf("Project %s", m.project)) + " " + dimStyle.Render(state)
	if !m.filter.Empty() {
		header += dimStyle.Render("  (filtered)")
	}

	boxes := make([]string, 0, len(m.cols))
	for i, col := range m.cols {
		title := fmt.Sprintf("%s (%d)", col.Stage.Name, len(col.Tasks))
		if i == m.focus {
			boxes = append(boxes, focusedColumnStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, m.table.View())))
			continue
		}
		lines := []string{title}
		for _, t := range col.Tasks {
			lines = append(lines, dimStyle.Render(truncate(t.Title, 24)))
		}
		boxes = append(boxes, columnStyle.Render(strings.Join(lines, "\n")))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		lipgloss.JoinHorizontal(lipgloss.Top, boxes...),
		m.notice,
		m.help.View(boardKeys),
	) + "\n"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
