package queue

import (
    "context"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "sync"
)

// FileLog appends one line per notification to Dir/notifications.log.
type FileLog struct {
    Dir string

    mu sync.Mutex
}

// NewFileLog returns a FileLog writing under dir ("logs" when empty).
func NewFileLog(dir string) *FileLog {
    if dir == "" {
        dir = "logs"
    }
    return &FileLog{Dir: dir}
}

// Deliver writes ev as a single human-friendly line.
func (l *FileLog) Deliver(_ context.Context, ev NotificationEvent) error {
    l.mu.Lock()
    defer l.mu.Unlock()

    if err := os.MkdirAll(l.Dir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", l.Dir, err)
    }
    f, err := os.OpenFile(filepath.Join(l.Dir, "notifications.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(formatLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

func formatLine(ev NotificationEvent) string {
    keys := make([]string, 0, len(ev.Data))
    for k := range ev.Data {
        keys = append(keys, k)
    }
    sort.Strings(keys)

    var b strings.Builder
    fmt.Fprintf(&b, "[%s] %s | to=%s | id=%s", ev.CreatedAt, ev.Kind, ev.Recipient, ev.ID)
    for _, k := range keys {
        fmt.Fprintf(&b, " | %s=%q", k, fmt.Sprint(ev.Data[k]))
    }
    b.WriteByte('\n')
    return b.String()
}
