package session

// Overlay is the ephemeral menu state attached to messages. Targets hold a
// message key (server id, else clientId).
type Overlay struct {
	MenuTarget     string `json:"menu_target,omitempty"`
	ReactionTarget string `json:"reaction_target,omitempty"`
	CameraOpen     bool   `json:"camera_open"`
}

func (o *Overlay) OpenMenu(key string) {
	o.MenuTarget = key
	o.ReactionTarget = ""
}

func (o *Overlay) CloseMenu() {
	o.MenuTarget = ""
}

// OpenReactions opens the picker for key and closes the context menu.
func (o *Overlay) OpenReactions(key string) {
	o.ReactionTarget = key
	o.MenuTarget = ""
}

func (o *Overlay) CloseReactions() {
	o.ReactionTarget = ""
}

func (o *Overlay) SetCamera(open bool) {
	o.CameraOpen = open
}

// Rekey follows a message whose key changed on confirmation.
func (o *Overlay) Rekey(oldKey, newKey string) {
	if oldKey == "" || oldKey == newKey {
		return
	}
	if o.MenuTarget == oldKey {
		o.MenuTarget = newKey
	}
	if o.ReactionTarget == oldKey {
		o.ReactionTarget = newKey
	}
}

// Drop closes anything targeting key. Used when the message is removed or
// tombstoned.
func (o *Overlay) Drop(key string) {
	if key == "" {
		return
	}
	if o.MenuTarget == key {
		o.MenuTarget = ""
	}
	if o.ReactionTarget == key {
		o.ReactionTarget = ""
	}
}

func (o *Overlay) Reset() {
	*o = Overlay{}
}
