package controller

import (
	"github.com/gofiber/websocket/v2"

	"leadcrm/utils"
	"leadcrm/worker"
)

// HandleTaskProgressWS streams task snapshots to the client. With
// ?task_id=... only that task is streamed and the socket closes once it
// finishes.
func HandleTaskProgressWS(tasks *worker.TaskQueue) func(*websocket.Conn) {
	log := utils.GetLogger("http").WithField("component", "task_ws")

	return func(c *websocket.Conn) {
		defer c.Close()

		taskID := c.Query("task_id")
		updates, unsubscribe := tasks.Subscribe()
		defer unsubscribe()

		// The client never sends anything we act on; reading only detects
		// that it went away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}()

		if taskID != "" {
			task, ok := tasks.Get(taskID)
			if !ok {
				_ = c.WriteJSON(map[string]string{"error": "task not found"})
				return
			}
			snap := task.Snapshot()
			if err := c.WriteJSON(snap); err != nil || finished(snap) {
				return
			}
		}

		for {
			select {
			case <-gone:
				return
			case snap, ok := <-updates:
				if !ok {
					return
				}
				if taskID != "" && snap.ID != taskID {
					continue
				}
				if err := c.WriteJSON(snap); err != nil {
					log.WithField("error", err).Debug("Task progress client disconnected")
					return
				}
				if taskID != "" && finished(snap) {
					return
				}
			}
		}
	}
}

func finished(s worker.TaskSnapshot) bool {
	return s.Status == worker.TaskSucceeded || s.Status == worker.TaskFailed
}
