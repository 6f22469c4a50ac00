package server

import (
	"encoding/json"
	"net/http"

	"github.com/hitushen/langdonboard/internal/feed"
	"github.com/hitushen/langdonboard/internal/findings"
	"github.com/hitushen/langdonboard/internal/models"
	"github.com/hitushen/langdonboard/internal/notify"
	"github.com/hitushen/langdonboard/internal/realtime"
	"github.com/hitushen/langdonboard/internal/visibility"
)

// feedSession 把一个登录会话的加载控制器、通知通道与哨兵上报绑在一起。
type feedSession struct {
	id       string
	ctrl     *feed.Controller
	notifier *notify.Channel
	tracker  *visibility.Tracker
	release  func()
}

func (fs *feedSession) close() {
	fs.release()
	fs.ctrl.Close()
	fs.notifier.Close()
}

// findingView 是带详情链接的发现项。
type findingView struct {
	models.Finding
	Route string `json:"route"`
}

func viewsOf(items []models.Finding) []findingView {
	out := make([]findingView, len(items))
	for i, f := range items {
		out[i] = findingView{Finding: f, Route: findings.Route(f)}
	}
	return out
}

// startFeed 为会话创建新的加载控制器，已有的会被替换。
func (s *Server) startFeed(id string) *feedSession {
	notifier := notify.New()
	tracker := visibility.NewTracker()
	ctrl := feed.New(s.source, notifier, tracker)

	ctrl.OnAppend(func(items []models.Finding) {
		s.broker.Publish(realtime.Event{Type: realtime.EventFindingsAppended, Feed: id, Payload: viewsOf(items)})
	})
	cancel := notifier.Subscribe(func(msg string) {
		s.logger.Warn("feed fetch failed", "feed", id, "error", msg)
		s.broker.Publish(realtime.Event{Type: realtime.EventNotification, Feed: id, Payload: msg})
	})
	fs := &feedSession{id: id, ctrl: ctrl, notifier: notifier, tracker: tracker, release: cancel}

	s.mu.Lock()
	old := s.feeds[id]
	s.feeds[id] = fs
	s.mu.Unlock()
	if old != nil {
		old.close()
	}

	ctrl.Start(s.ctx)
	return fs
}

func (s *Server) lookupFeed(id string) *feedSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feeds[id]
}

func (s *Server) dropFeed(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	fs := s.feeds[id]
	delete(s.feeds, id)
	s.mu.Unlock()
	if fs != nil {
		fs.close()
	}
}

// currentFeed 返回请求会话的加载控制器，没有时写出 409。
func (s *Server) currentFeed(w http.ResponseWriter, r *http.Request) (*feedSession, bool) {
	id, err := s.auth.FeedID(w, r)
	if err != nil {
		writeErr(w, err, http.StatusInternalServerError)
		return nil, false
	}
	fs := s.lookupFeed(id)
	if fs == nil {
		writeMessage(w, "feed not started", http.StatusConflict)
		return nil, false
	}
	return fs, true
}

func (s *Server) apiStartFeed(w http.ResponseWriter, r *http.Request) {
	id, err := s.auth.FeedID(w, r)
	if err != nil {
		writeErr(w, err, http.StatusInternalServerError)
		return
	}
	fs := s.startFeed(id)
	s.logger.InfoContext(r.Context(), "feed started", "feed", fs.id)
	writeJSONStatus(w, map[string]string{"feed": fs.id, "sentinel": fs.ctrl.Sentinel()}, http.StatusCreated)
}

func (s *Server) apiFeedState(w http.ResponseWriter, r *http.Request) {
	fs, ok := s.currentFeed(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]interface{}{
		"items":     viewsOf(fs.ctrl.Items()),
		"page":      fs.ctrl.Page(),
		"exhausted": fs.ctrl.Exhausted(),
	})
}

func (s *Server) apiSentinel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Ratio *float64 `json:"ratio"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return
	}
	if body.Ratio == nil || *body.Ratio < 0 || *body.Ratio > 1 {
		writeMessage(w, "ratio must be between 0 and 1", http.StatusBadRequest)
		return
	}
	fs, ok := s.currentFeed(w, r)
	if !ok {
		return
	}
	fs.tracker.Report(fs.ctrl.Sentinel(), *body.Ratio)
	writeJSON(w, map[string]interface{}{
		"page":      fs.ctrl.Page(),
		"exhausted": fs.ctrl.Exhausted(),
	})
}

func (s *Server) apiNotification(w http.ResponseWriter, r *http.Request) {
	id, err := s.auth.FeedID(w, r)
	if err != nil {
		writeErr(w, err, http.StatusInternalServerError)
		return
	}
	var message *string
	if fs := s.lookupFeed(id); fs != nil {
		if msg, ok := fs.notifier.Message(); ok {
			message = &msg
		}
	}
	writeJSON(w, map[string]*string{"message": message})
}
