// Package pb holds the wire schema of the Photon protocol.
//
// Every frame carries one Packet: a version, a type tag and exactly one of the
// typed bodies below, selected by Type.
package pb

import "github.com/photonchat/photon/pkg/model"

// Version is the protocol version written into every packet.
const Version = 1

// Type names the packet kind on the wire.
type Type string

const (
	TypeRegister         Type = "REGISTER"
	TypeRegisterResponse Type = "REGISTER_RESPONSE"
	TypeLogin            Type = "LOGIN"
	TypeLoginResponse    Type = "LOGIN_RESPONSE"
	TypeReady            Type = "READY"
	TypeMessage          Type = "MESSAGE"
	TypeMessageList      Type = "MESSAGE_LIST"
	TypeOnlineUsers      Type = "ONLINE_USERS"
	TypeCommand          Type = "COMMAND"
	TypeCommandResponse  Type = "COMMAND_RESPONSE"
	TypeRequestUserList  Type = "REQUEST_USER_LIST"
	TypeUserList         Type = "USER_LIST"
	TypeRequestUserInfo  Type = "REQUEST_USER_INFO"
	TypeUserInfo         Type = "USER_INFO"
	TypeReport           Type = "REPORT"
	TypeEditMessage      Type = "EDIT_MESSAGE"
	TypeDeleteMessage    Type = "DELETE_MESSAGE"
	TypeSetAdminStatus   Type = "SET_ADMIN_STATUS"
	TypePing             Type = "PING"
	TypePong             Type = "PONG"
	TypeError            Type = "ERROR"
)

// Packet is the envelope of every frame.
type Packet struct {
	Version int  `json:"v"`
	Type    Type `json:"type"`

	// Only the body matching Type is set.
	Credentials     *Credentials        `json:"credentials,omitempty"`
	Result          *Result             `json:"result,omitempty"`
	LoginResult     *LoginResult        `json:"login_result,omitempty"`
	Message         *model.Message      `json:"message,omitempty"`
	Messages        []*model.Message    `json:"messages,omitempty"`
	Users           []string            `json:"users,omitempty"`
	Command         *Command            `json:"command,omitempty"`
	CommandResponse *CommandResponse    `json:"command_response,omitempty"`
	UserList        []model.UserSummary `json:"user_list,omitempty"`
	Username        string              `json:"username,omitempty"`
	UserInfo        *model.UserDetails  `json:"user_info,omitempty"`
	Report          *Report             `json:"report,omitempty"`
	Edit            *EditMessage        `json:"edit,omitempty"`
	Delete          *DeleteMessage      `json:"delete,omitempty"`
	AdminStatus     *AdminStatus        `json:"admin_status,omitempty"`
	Timestamp       int64               `json:"timestamp,omitempty"`
	Error           *Error              `json:"error,omitempty"`
}

// New returns an empty packet of the given type.
func New(t Type) *Packet {
	return &Packet{Version: Version, Type: t}
}

// ----- Handshake -----

type Credentials struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"` // client-side hash, never the plaintext
}

type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type LoginResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	UserID  int64  `json:"user_id,omitempty"`
	Admin   bool   `json:"admin,omitempty"`
}

// ----- Commands -----

type Command struct {
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`
}

type CommandResponse struct {
	Command   string `json:"command"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Payload   string `json:"payload,omitempty"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// ----- Moderation -----

type Report struct {
	MessageID  int64  `json:"message_id"`
	ReporterID int64  `json:"reporter_id,omitempty"` // ignored by the server
	Reason     string `json:"reason"`
}

type EditMessage struct {
	MessageID   int64  `json:"message_id"`
	NewContents string `json:"new_contents"`
}

type DeleteMessage struct {
	MessageID int64 `json:"message_id"`
}

type AdminStatus struct {
	UserID int64 `json:"user_id"`
	Admin  bool  `json:"admin"`
}

// ----- Generic -----

type Error struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Request Type   `json:"request,omitempty"`
}
