package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fentz26/fleetsim/internal/events"
	"github.com/fentz26/fleetsim/internal/models"
	"github.com/fentz26/fleetsim/internal/sim"
	"github.com/gorilla/websocket"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// Client wraps HTTP calls to the fleetsim API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

// ListRobots fetches the fleet.
func (c *Client) ListRobots() ([]models.Robot, error) {
	var robots []models.Robot
	return robots, c.get("/robots", &robots)
}

// ListTasks fetches tasks, optionally filtered by status.
func (c *Client) ListTasks(status string) ([]models.Task, error) {
	path := "/tasks"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var tasks []models.Task
	return tasks, c.get(path, &tasks)
}

// GetTask fetches a single task.
func (c *Client) GetTask(id string) (*models.Task, error) {
	var t models.Task
	if err := c.get("/tasks/"+url.PathEscape(id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListAlerts fetches alerts, newest first.
func (c *Client) ListAlerts() ([]models.Alert, error) {
	var alerts []models.Alert
	return alerts, c.get("/alerts", &alerts)
}

// Stats fetches engine statistics.
func (c *Client) Stats() (*sim.Stats, error) {
	var st sim.Stats
	if err := c.get("/simulation", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// CreateTask queues a delivery and returns its ID.
func (c *Client) CreateTask(req models.CreateTaskRequest) (string, error) {
	var t models.Task
	if err := c.send(http.MethodPost, "/tasks", req, &t); err != nil {
		return "", err
	}
	return t.ID, nil
}

// CancelTask cancels a task.
func (c *Client) CancelTask(id string) error {
	return c.send(http.MethodPost, "/tasks/"+url.PathEscape(id)+"/cancel", nil, nil)
}

// AssignTask binds a queued task to a robot.
func (c *Client) AssignTask(taskID, robotID string) error {
	return c.send(http.MethodPost, "/tasks/"+url.PathEscape(taskID)+"/assign",
		models.AssignTaskRequest{RobotID: robotID}, nil)
}

// InjectFault forces a robot into error.
func (c *Client) InjectFault(robotID string, fault models.FaultType) error {
	return c.send(http.MethodPost, "/robots/"+url.PathEscape(robotID)+"/fault",
		models.FaultRequest{FaultType: fault}, nil)
}

// Recover starts a recovery attempt without waiting for the outcome; the
// result arrives as an alert.
func (c *Client) Recover(robotID string) error {
	return c.send(http.MethodPost, "/robots/"+url.PathEscape(robotID)+"/recover?async=true", nil, nil)
}

// SetRobotStatus overrides a robot's status.
func (c *Client) SetRobotStatus(robotID string, status models.RobotStatus) error {
	return c.send(http.MethodPut, "/robots/"+url.PathEscape(robotID)+"/status",
		models.RobotStatusRequest{Status: status}, nil)
}

// AckAlert acknowledges an alert.
func (c *Client) AckAlert(id string) error {
	return c.send(http.MethodPost, "/alerts/"+url.PathEscape(id)+"/ack", nil, nil)
}

// ResolveAlert resolves an alert.
func (c *Client) ResolveAlert(id string) error {
	return c.send(http.MethodPost, "/alerts/"+url.PathEscape(id)+"/resolve", nil, nil)
}

// StartSimulation starts the tick loops.
func (c *Client) StartSimulation() error {
	return c.send(http.MethodPost, "/simulation/start", nil, nil)
}

// StopSimulation stops the tick loops.
func (c *Client) StopSimulation() error {
	return c.send(http.MethodPost, "/simulation/stop", nil, nil)
}

// SetSpeed changes the speed multiplier.
func (c *Client) SetSpeed(multiplier float64) error {
	return c.send(http.MethodPut, "/simulation/speed", models.SpeedRequest{Multiplier: multiplier}, nil)
}

// CheckHealth checks if the daemon is healthy.
func (c *Client) CheckHealth() (bool, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	var health struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false, err
	}
	return health.OK, nil
}

// EventFrame is one message of the live event stream. Payload is left raw
// and decoded by topic.
type EventFrame struct {
	Type    events.Topic    `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Subscribe opens the live event stream.
func (c *Client) Subscribe() (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL + "/ws/events")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	dialer := websocket.Dialer{HandshakeTimeout: DefaultClientTimeout}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return conn, nil
}

func (c *Client) get(path string, out interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (c *Client) send(method, path string, data, out interface{}) error {
	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return err
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("API error: %s", apiErr.Message)
		}
		return fmt.Errorf("API error: %s", strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
