package conversation

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultPersona is the built-in role-and-policy block used when no persona
// file is configured or readable.
const defaultPersona = `Ты — личный исполнительный ассистент владельца. Работаешь в Telegram.

Твоя роль:
- следить за задачами и обещаниями владельца и напоминать о них;
- отвечать коротко и по делу, на языке владельца;
- использовать инструменты вместо догадок: список задач бери через list_tasks,
  историю переписки ищи через search_memory, сводку чата через get_chat_summary;
- создавать задачи только когда владелец явно этого хочет;
- никогда не выдумывать содержимое переписки или задач.

Ограничения:
- ты ассистент одного человека, не обсуждай других пользователей;
- не отправляй сообщения никому кроме владельца;
- если не уверен — спроси, а не предполагай.`

// personaDebounce coalesces editor save bursts into one reload.
const personaDebounce = 200 * time.Millisecond

// Persona serves the static system block and hot-reloads the backing file.
// The text is stable between edits, which is what makes the block cacheable.
type Persona struct {
	path string

	mu   sync.RWMutex
	text string

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// LoadPersona reads the persona file and, when watch is set, follows
// further edits. A missing file falls back to the built-in persona.
func LoadPersona(path string, watch bool) (*Persona, error) {
	p := &Persona{path: path, text: defaultPersona, done: make(chan struct{})}
	if path == "" {
		return p, nil
	}
	if abs, err := filepath.Abs(path); err == nil {
		p.path = filepath.Clean(abs)
	}
	p.reload()

	if !watch {
		return p, nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace files, which drops a watch on
	// the file itself.
	if err := w.Add(filepath.Dir(p.path)); err != nil {
		_ = w.Close()
		return nil, err
	}
	p.watcher = w
	go p.watchLoop()
	return p, nil
}

// Text returns the current persona block.
func (p *Persona) Text() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.text
}

// Close stops the watcher, if any.
func (p *Persona) Close() error {
	p.once.Do(func() { close(p.done) })
	if p.watcher != nil {
		return p.watcher.Close()
	}
	return nil
}

func (p *Persona) reload() {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		slog.Warn("persona file unreadable, keeping previous", "path", p.path, "error", err)
		return
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		slog.Warn("persona file empty, keeping previous", "path", p.path)
		return
	}
	p.mu.Lock()
	changed := p.text != text
	p.text = text
	p.mu.Unlock()
	if changed {
		slog.Info("persona reloaded", "path", p.path, "bytes", len(text))
	}
}

func (p *Persona) watchLoop() {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	reload := make(chan struct{}, 1)
	for {
		select {
		case <-p.done:
			return
		case <-reload:
			p.reload()
		case ev, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != p.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(personaDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("persona watcher error", "error", err)
		}
	}
}
