package wsmessaging

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	relayMailboxSize = 256
	writeTimeout     = 5 * time.Second
)

type authRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string `json:"token"`
}

type sendRequest struct {
	To      string          `json:"to"`
	Payload json.RawMessage `json:"payload"`
}

// frame is what the relay pushes on a peer websocket. From is set by the
// relay from the sender token and can't be forged by the sender.
type frame struct {
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

type peer struct {
	password string
	token    string
	// out is the peer mailbox, drained by its websocket writer.
	out chan frame
}

// Relay is a store-and-forward hub between named peers. A peer registers
// its name with the first authentication, later ones must match the
// password.
type Relay struct {
	lock     *sync.Mutex
	peers    map[string]*peer
	tokens   map[string]string
	upgrader websocket.Upgrader
}

func NewRelay() *Relay {
	return &Relay{
		lock:   &sync.Mutex{},
		peers:  make(map[string]*peer),
		tokens: make(map[string]string),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (r *Relay) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	router.POST("/v1/auth", r.auth)
	router.POST("/v1/send", r.send)
	router.GET("/v1/ws", r.subscribe)
	return router
}

func (r *Relay) auth(c *gin.Context) {
	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	p, ok := r.peers[req.Name]
	if !ok {
		p = &peer{
			password: req.Password,
			out:      make(chan frame, relayMailboxSize),
		}
		r.peers[req.Name] = p
		log.Infof("relay: registered peer %s", req.Name)
	}
	if p.password != req.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	delete(r.tokens, p.token)
	p.token = uuid.New().String()
	r.tokens[p.token] = req.Name
	c.JSON(http.StatusOK, authResponse{p.token})
}

func (r *Relay) send(c *gin.Context) {
	from, ok := r.authenticate(bearerToken(c.GetHeader("Authorization")))
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.To == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	r.lock.Lock()
	to, ok := r.peers[req.To]
	r.lock.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown peer"})
		return
	}

	select {
	case to.out <- frame{From: from, Payload: req.Payload}:
		c.Status(http.StatusAccepted)
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "peer mailbox full"})
	}
}

func (r *Relay) subscribe(c *gin.Context) {
	name, ok := r.authenticate(c.Query("token"))
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	r.lock.Lock()
	p := r.peers[name]
	r.lock.Unlock()

	conn, err := r.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("relay: websocket upgrade failed")
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Only used to detect the peer going away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Debugf("relay: peer %s connected", name)
	for {
		select {
		case <-done:
			log.Debugf("relay: peer %s disconnected", name)
			return
		case f := <-p.out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(f); err != nil {
				// Keep the frame for the next connection.
				select {
				case p.out <- f:
				default:
				}
				return
			}
		}
	}
}

func (r *Relay) authenticate(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	name, ok := r.tokens[token]
	return name, ok
}

func bearerToken(header string) string {
	return strings.TrimPrefix(header, "Bearer ")
}
