package rendezvous

import (
	"time"

	"gorm.io/gorm"
)

// PeerStore is the persistent directory of registered peers.
type PeerStore struct {
	DB *gorm.DB
}

func NewPeerStore(db *gorm.DB) *PeerStore {
	return &PeerStore{DB: db}
}

func (ps *PeerStore) CreatePeer(peerID, remoteAddr string) error {
	peer := Peer{PeerID: peerID, RemoteAddr: remoteAddr, ConnectedAt: time.Now().Unix()}
	return ps.DB.Create(&peer).Error
}

func (ps *PeerStore) GetPeers() ([]Peer, error) {
	peers := []Peer{}
	err := ps.DB.Order("peer_id").Find(&peers).Error
	return peers, err
}

func (ps *PeerStore) DeletePeer(peerID string) error {
	return ps.DB.Where("peer_id = ?", peerID).Delete(&Peer{}).Error
}

// Clear removes every row.
func (ps *PeerStore) Clear() error {
	return ps.DB.Where("1 = 1").Delete(&Peer{}).Error
}

func (ps *PeerStore) Close() error {
	sqlDB, err := ps.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
