package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"docshare/internal/auth"
	"docshare/pkg/logger"
	"docshare/pkg/metrics"
)

const (
	VersionSavedType   = "VERSION_SAVED"   // A version was appended, refetch the history
	MembersChangedType = "MEMBERS_CHANGED" // Membership rows changed, refetch the member list
	PresenceUpdateType = "PRESENCE_UPDATE" // A user opened or closed the document
)

// WSMessage is what the hub sends to browsers. Payloads are refetch hints
// and never carry document content.
type WSMessage struct {
	Type    string          `json:"type"`
	DocID   string          `json:"document_id"`
	Payload json.RawMessage `json:"payload"`
}

type UserStatus struct {
	UserID   string    `json:"user_id"`
	Email    string    `json:"email"`
	JoinedAt time.Time `json:"joined_at"`
}

type Hub struct {
	Rooms      map[string]map[*Client]bool
	Broadcast  chan WSMessage
	Register   chan *Client
	Unregister chan *Client
	mu         sync.Mutex
	Presence   map[string]map[string]UserStatus // docID -> userID -> status

	allowedOrigins map[string]bool
	done           chan struct{}
}

func NewHub(allowedOrigins []string) *Hub {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Hub{
		Rooms:          make(map[string]map[*Client]bool),
		Broadcast:      make(chan WSMessage, 64),
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		Presence:       make(map[string]map[string]UserStatus),
		allowedOrigins: origins,
		done:           make(chan struct{}),
	}
}

// Run is the hub's event loop. It returns when ctx is cancelled, closing
// every open socket on the way out.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.DocID] == nil {
				h.Rooms[client.DocID] = make(map[*Client]bool)
				h.Presence[client.DocID] = make(map[string]UserStatus)
			}
			h.Rooms[client.DocID][client] = true
			h.Presence[client.DocID][client.UserID] = UserStatus{UserID: client.UserID, Email: client.Email, JoinedAt: time.Now()}
			h.mu.Unlock()

			metrics.SocketConnections.Inc()
			h.broadcastPresenceUpdate(client.DocID)

		case client := <-h.Unregister:
			h.mu.Lock()
			docID := client.DocID
			roomLeft := false
			if _, ok := h.Rooms[docID][client]; ok {
				delete(h.Rooms[docID], client)
				close(client.Send)
				metrics.SocketConnections.Dec()

				if !h.userInRoom(docID, client.UserID) {
					delete(h.Presence[docID], client.UserID)
				}
				if len(h.Rooms[docID]) == 0 {
					delete(h.Rooms, docID)
					delete(h.Presence, docID)
					logger.Sugar.Debugf("Closed empty room: %s", docID)
				} else {
					roomLeft = true
				}
			}
			h.mu.Unlock()

			if roomLeft {
				h.broadcastPresenceUpdate(docID)
			}

		case msg := <-h.Broadcast:
			payload, err := json.Marshal(msg)
			if err != nil {
				logger.Sugar.Errorf("Error marshalling broadcast message: %v", err)
				continue
			}

			h.mu.Lock()
			clientsToSend := make([]*Client, 0, len(h.Rooms[msg.DocID]))
			for client := range h.Rooms[msg.DocID] {
				clientsToSend = append(clientsToSend, client)
			}
			h.mu.Unlock()

			for _, client := range clientsToSend {
				select {
				case client.Send <- payload:
				default:
					// A lagging client is dropped rather than allowed to block the hub.
					logger.Sugar.Warnf("Client %s's send buffer is full. Disconnecting.", client.UserID)
					client.Conn.Close()
				}
			}
		}
	}
}

// userInRoom reports whether userID still has another tab on docID.
// Callers hold h.mu.
func (h *Hub) userInRoom(docID, userID string) bool {
	for c := range h.Rooms[docID] {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

func (h *Hub) publish(msg WSMessage) {
	select {
	case h.Broadcast <- msg:
	case <-h.done:
	}
}

// VersionSaved tells every open page of docID to refetch its history.
func (h *Hub) VersionSaved(docID, versionID string) {
	payload, _ := json.Marshal(map[string]string{"version_id": versionID})
	h.publish(WSMessage{Type: VersionSavedType, DocID: docID, Payload: payload})
}

// MembersChanged tells every open page of docID that membership changed.
// It does not revoke anything: a removed member keeps the socket until the
// next role check fails.
func (h *Hub) MembersChanged(docID string) {
	h.publish(WSMessage{Type: MembersChangedType, DocID: docID, Payload: json.RawMessage(`{}`)})
}

// DisconnectUser closes every socket of userID. The read pumps notice and
// unregister themselves.
func (h *Hub) DisconnectUser(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, clients := range h.Rooms {
		for client := range clients {
			if client.UserID == userID {
				client.Conn.Close()
				n++
			}
		}
	}
	return n
}

// HandleAuthEvent closes the sockets of users who sign out.
func (h *Hub) HandleAuthEvent(change auth.StateChange) {
	if change.Event != auth.SignedOut {
		return
	}
	if n := h.DisconnectUser(change.User.ID); n > 0 {
		logger.Sugar.Infof("Closed %d socket(s) of signed-out user %s", n, change.User.ID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.Rooms {
		for client := range clients {
			client.Conn.Close()
		}
	}
}

// checkOrigin accepts same-origin requests and the configured origins.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigins[origin] {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

func (h *Hub) broadcastPresenceUpdate(docID string) {
	var userStatuses []UserStatus
	var clientsToSend []*Client

	h.mu.Lock()
	if _, ok := h.Presence[docID]; ok {
		userStatuses = make([]UserStatus, 0, len(h.Presence[docID]))
		for _, status := range h.Presence[docID] {
			userStatuses = append(userStatuses, status)
		}

		clientsToSend = make([]*Client, 0, len(h.Rooms[docID]))
		for client := range h.Rooms[docID] {
			clientsToSend = append(clientsToSend, client)
		}
	}
	h.mu.Unlock()

	if len(clientsToSend) == 0 {
		return
	}

	payload, err := json.Marshal(userStatuses)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling presence broadcast: %v", err)
		return
	}
	broadcastPayload, _ := json.Marshal(WSMessage{Type: PresenceUpdateType, DocID: docID, Payload: payload})

	for _, client := range clientsToSend {
		select {
		case client.Send <- broadcastPayload:
		default:
			logger.Sugar.Warnf("Client %s's send buffer was full during presence update.", client.UserID)
		}
	}
}
