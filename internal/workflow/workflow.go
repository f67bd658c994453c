// Package workflow drives the guided publishing conversation: a typed stage
// machine over per-user sessions, fed by text, photo, command, and callback
// updates. Handlers for one user run sequentially; a cancel at any point
// invalidates in-flight work through session epochs instead of waiting for it.
package workflow

import (
	"io"
	"os"
	"strconv"
	"sync"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/carpostbot/core/telegram"
	"github.com/m3rciful/carpostbot/core/telegram/commands"
	"github.com/m3rciful/carpostbot/core/telegram/keyboard"
	"github.com/m3rciful/carpostbot/internal/artifact"
	"github.com/m3rciful/carpostbot/internal/generate"
	"github.com/m3rciful/carpostbot/internal/session"
)

const (
	btnNewListing = "🚗 New Listing"
	btnNewPost    = "📝 New Post"

	// cancelAction keys the inline Cancel button callback.
	cancelAction = "workflow_cancel"
)

// Processor is the slice of the media pipeline the workflow depends on.
type Processor interface {
	ProcessFile(path string, ordinal int) (artifact.Handle, error)
	Release(handles ...artifact.Handle)
	Path(h artifact.Handle) (string, error)
}

// Publisher posts a finished album to the channel.
type Publisher interface {
	Publish(caption string, handles []artifact.Handle) error
}

// Manager owns the conversation state machine. It implements the message
// router's FSM contract: InProgress, ManagerHandler, PhotoHandler.
type Manager struct {
	sessions *session.Registry
	gen      generate.Generator
	media    Processor
	pub      Publisher
	workDir  string

	// fetch downloads the incoming photo to a local file. Swapped in tests.
	fetch func(c tele.Context, file *tele.File) (string, error)

	// dispatcherErrors feeds the /status report; wired at runtime start.
	dispatcherErrors func() uint64

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New builds a Manager over the given collaborators.
func New(sessions *session.Registry, gen generate.Generator, media Processor, pub Publisher, workDir string) *Manager {
	m := &Manager{
		sessions: sessions,
		gen:      gen,
		media:    media,
		pub:      pub,
		workDir:  workDir,
		locks:    make(map[int64]*sync.Mutex),
	}
	m.fetch = m.downloadPhoto
	return m
}

// SetDispatcherErrors wires the outbound-queue error counter for /status.
func (m *Manager) SetDispatcherErrors(fn func() uint64) {
	m.dispatcherErrors = fn
}

// SetPublisher late-binds the channel publisher. The publisher needs the
// live bot instance, which only exists once the runtime starts.
func (m *Manager) SetPublisher(p Publisher) {
	m.pub = p
}

// Register wires the workflow's commands, entry actions, and callbacks.
func (m *Manager) Register(reg *tg.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     m.StartHandler,
		Description: "Show the main menu",
	})
	reg.RegisterCommand("/done", commands.Command{
		Handler:     m.DoneHandler,
		Description: "Publish the collected photos as an album",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     m.CancelHandler,
		Description: "Cancel the current workflow",
	})
	reg.RegisterCommand("/status", commands.Command{
		Handler:     m.StatusHandler,
		Description: "Runtime status",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.SetTextFallback(m.EntryHandler)
	_ = reg.RegisterCallback(cancelAction, m.CancelCallback)
}

// InProgress implements router.FSM.
func (m *Manager) InProgress(userID int64) bool {
	return m.sessions.InProgress(userID)
}

// workLock serializes the heavy per-user handlers (text generation, photo
// processing, finalize) so artifacts keep arrival order. Cancel deliberately
// does not take it.
func (m *Manager) workLock(userID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[userID] = l
	}
	return l
}

func entryKeyboard() *tele.ReplyMarkup {
	return keyboard.ReplyButtons([]string{btnNewListing, btnNewPost})
}

func topicKeyboard() *tele.ReplyMarkup {
	return keyboard.ReplyButtons(
		[]string{"Buying a used car: what to check"},
		[]string{"Keeping resale value high"},
		[]string{"Rainy season driving tips"},
	)
}

// cancelMarkup builds the inline Cancel button. The button payload carries
// the pass epoch, so a leftover button from an earlier pass cannot cancel
// the current one.
func cancelMarkup(epoch uint64) *tele.ReplyMarkup {
	return keyboard.SingleCancelMarkup(cancelAction, strconv.FormatUint(epoch, 10))
}

// downloadPhoto pulls the largest available photo size into a temp file
// under the work directory. The caller owns the file afterwards.
func (m *Manager) downloadPhoto(c tele.Context, file *tele.File) (string, error) {
	rc, err := c.Bot().File(file)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(m.workDir, "incoming-*.jpg")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
