package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// assignID fills a zero primary key before insert. Defaults are generated in
// Go rather than by gen_random_uuid() so the same models migrate on sqlite.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (n *Node) BeforeCreate(*gorm.DB) error               { assignID(&n.ID); return nil }
func (s *SupplyChain) BeforeCreate(*gorm.DB) error        { assignID(&s.ID); return nil }
func (o *Operation) BeforeCreate(*gorm.DB) error          { assignID(&o.ID); return nil }
func (p *Product) BeforeCreate(*gorm.DB) error            { assignID(&p.ID); return nil }
func (b *Batch) BeforeCreate(*gorm.DB) error              { assignID(&b.ID); return nil }
func (t *Transaction) BeforeCreate(*gorm.DB) error        { assignID(&t.ID); return nil }
func (s *SourceBatch) BeforeCreate(*gorm.DB) error        { assignID(&s.ID); return nil }
func (c *Claim) BeforeCreate(*gorm.DB) error              { assignID(&c.ID); return nil }
func (c *Criterion) BeforeCreate(*gorm.DB) error          { assignID(&c.ID); return nil }
func (f *CriterionField) BeforeCreate(*gorm.DB) error     { assignID(&f.ID); return nil }
func (a *AttachedBatchClaim) BeforeCreate(*gorm.DB) error { assignID(&a.ID); return nil }
func (r *FieldResponse) BeforeCreate(*gorm.DB) error      { assignID(&r.ID); return nil }
func (a *AttachedCompanyClaim) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}
func (t *Theme) BeforeCreate(*gorm.DB) error        { assignID(&t.ID); return nil }
func (s *StockRequest) BeforeCreate(*gorm.DB) error { assignID(&s.ID); return nil }
func (u *User) BeforeCreate(*gorm.DB) error         { assignID(&u.ID); return nil }
