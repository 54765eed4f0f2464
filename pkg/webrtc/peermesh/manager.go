package peermesh

import (
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	apperrors "github.com/EduMesh/ClassLink/pkg/errors"
	"github.com/EduMesh/ClassLink/pkg/logger"
	"github.com/EduMesh/ClassLink/pkg/protocol"
)

// LinkFactory builds a link toward one remote participant. Tests swap in
// fakes here; production wires NewMeshLink.
type LinkFactory func(remoteConnID string) (PeerLink, error)

// MeshLinkFactory returns a factory producing pion-backed links with the
// given options.
func MeshLinkFactory(opt LinkOptions, signaler Signaler) LinkFactory {
	return func(remoteConnID string) (PeerLink, error) {
		return NewMeshLink(remoteConnID, opt, signaler)
	}
}

// Manager owns all links of one local participant, one per remote peer.
//
// Glare between two peers is avoided structurally: whoever learns about a
// peer from the existing-participants roster initiates toward it, while a
// peer-joined notification only prepares a link and waits for the remote
// offer. The two sides of any pair always land on opposite branches.
type Manager struct {
	factory LinkFactory

	mu    sync.Mutex
	links map[string]PeerLink
}

// NewManager creates an empty manager.
func NewManager(factory LinkFactory) *Manager {
	return &Manager{
		factory: factory,
		links:   make(map[string]PeerLink),
	}
}

// HandleRoster dials every participant that was already in the room when the
// local peer joined. Errors are per-peer: one failed link does not abort the
// rest of the roster.
func (pm *Manager) HandleRoster(roster []protocol.Participant) {
	for _, p := range roster {
		link, fresh, err := pm.ensureLink(p.ConnectionID)
		if err != nil {
			logger.Error("failed to create link for existing participant",
				zap.String("remote", p.ConnectionID),
				zap.Error(err))
			continue
		}
		if !fresh {
			continue
		}
		if err := link.Initiate(); err != nil {
			logger.Error("offer failed",
				zap.String("remote", p.ConnectionID),
				zap.Error(err))
			pm.Remove(p.ConnectionID)
		}
	}
}

// HandlePeerJoined prepares a link for a newly arrived peer. No offer is
// sent; the new peer initiates because it saw us in its roster.
func (pm *Manager) HandlePeerJoined(remoteConnID string) {
	if _, _, err := pm.ensureLink(remoteConnID); err != nil {
		logger.Error("failed to create link for joining participant",
			zap.String("remote", remoteConnID),
			zap.Error(err))
	}
}

// HandleOffer routes a remote offer to the matching link, creating one if
// the offer raced ahead of the peer-joined notification.
func (pm *Manager) HandleOffer(remoteConnID, sdp string) error {
	link, _, err := pm.ensureLink(remoteConnID)
	if err != nil {
		return err
	}
	return link.HandleOffer(sdp)
}

// HandleAnswer routes a remote answer to the matching link.
func (pm *Manager) HandleAnswer(remoteConnID, sdp string) error {
	link, ok := pm.Lookup(remoteConnID)
	if !ok {
		return apperrors.NewAppErrorf(apperrors.ErrCodeUnknownTarget,
			"answer from unknown peer %s", remoteConnID)
	}
	return link.HandleAnswer(sdp)
}

// HandleCandidate routes a trickled ICE candidate to the matching link.
func (pm *Manager) HandleCandidate(remoteConnID string, candidate protocol.ICECandidatePayload) error {
	link, ok := pm.Lookup(remoteConnID)
	if !ok {
		return apperrors.NewAppErrorf(apperrors.ErrCodeUnknownTarget,
			"candidate from unknown peer %s", remoteConnID)
	}
	return link.AddRemoteCandidate(candidate)
}

// HandlePeerLeft tears down the link toward a departed peer.
func (pm *Manager) HandlePeerLeft(remoteConnID string) {
	pm.Remove(remoteConnID)
}

// ReplaceVideoTrack swaps the outgoing video source on every established
// link. Links whose sender rejects the swap are reported but do not stop
// the remaining links.
func (pm *Manager) ReplaceVideoTrack(track webrtc.TrackLocal) error {
	var firstErr error
	for _, link := range pm.snapshot() {
		if err := link.ReplaceVideoTrack(track); err != nil {
			logger.Warn("video track swap failed",
				zap.String("remote", link.RemoteConnectionID()),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Lookup returns the link for a remote participant.
func (pm *Manager) Lookup(remoteConnID string) (PeerLink, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	link, ok := pm.links[remoteConnID]
	return link, ok
}

// Len reports how many links exist.
func (pm *Manager) Len() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.links)
}

// Remove closes and forgets a link. Unknown peers are a no-op.
func (pm *Manager) Remove(remoteConnID string) {
	pm.mu.Lock()
	link, ok := pm.links[remoteConnID]
	delete(pm.links, remoteConnID)
	pm.mu.Unlock()
	if !ok {
		return
	}
	if err := link.Close(); err != nil {
		logger.Debug("error closing link",
			zap.String("remote", remoteConnID),
			zap.Error(err))
	}
}

// CloseAll tears down every link, typically on leave or shutdown.
func (pm *Manager) CloseAll() {
	pm.mu.Lock()
	links := pm.links
	pm.links = make(map[string]PeerLink)
	pm.mu.Unlock()

	for id, link := range links {
		if err := link.Close(); err != nil {
			logger.Debug("error closing link",
				zap.String("remote", id),
				zap.Error(err))
		}
	}
}

// ensureLink returns the existing link for a peer or creates one. fresh is
// true when this call created it.
func (pm *Manager) ensureLink(remoteConnID string) (link PeerLink, fresh bool, err error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if link, ok := pm.links[remoteConnID]; ok {
		return link, false, nil
	}
	link, err = pm.factory(remoteConnID)
	if err != nil {
		return nil, false, err
	}
	pm.links[remoteConnID] = link
	return link, true, nil
}

func (pm *Manager) snapshot() []PeerLink {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make([]PeerLink, 0, len(pm.links))
	for _, link := range pm.links {
		out = append(out, link)
	}
	return out
}
