package dataset

import (
	"gonum.org/v1/gonum/mat"

	"github.com/tracelab/bimanip/internal/pkl"
	"github.com/tracelab/bimanip/internal/program"
)

// InstantiatedPrimitive is one primitive's pose and object data sliced
// over its enclosing frame range. Hand slices are padded to the full
// range: frames outside that hand's interval hold a nil tensor group
// and a false mask entry.
type InstantiatedPrimitive struct {
	Primitive *program.Primitive

	// FrameIDs is the ascending mocap frame ids of the enclosing range.
	FrameIDs []int

	// Body holds per-frame body pose tensor groups, aligned with FrameIDs.
	Body []map[string]*pkl.Tensor
	// LeftHand/RightHand are aligned with FrameIDs; entries are nil
	// outside the hand's own interval.
	LeftHand  []map[string]*pkl.Tensor
	RightHand []map[string]*pkl.Tensor
	// LeftMask/RightMask report which FrameIDs lie inside the hand's
	// interval.
	LeftMask  []bool
	RightMask []bool

	// ObjectTransf maps each involved object (that has transform data)
	// to its per-frame transforms, aligned with FrameIDs.
	ObjectTransf map[string][]*mat.Dense
	// Objects is the involvement list filtered to objects with
	// transform data.
	Objects []string

	// Geometry is the opaque output of the injected pose evaluator,
	// nil when no evaluator is configured.
	Geometry any
	// ObjectModels holds loader output per object, nil without a loader.
	ObjectModels map[string]any
}

// Instantiate slices one primitive of a sequence. Results are not
// cached; callers wanting all primitives instantiated should open the
// dataset with ReturnInstantiated instead.
func (d *Dataset) Instantiate(seqKey, pairKey string) (*InstantiatedPrimitive, error) {
	seq, err := d.Get(seqKey)
	if err != nil {
		return nil, err
	}
	p, err := d.Primitive(seqKey, pairKey)
	if err != nil {
		return nil, err
	}
	return d.instantiate(seq, p)
}

func (d *Dataset) instantiate(seq *Sequence, p *program.Primitive) (*InstantiatedPrimitive, error) {
	store := seq.Annotations
	hull, _ := p.Pair.Enclose()

	inst := &InstantiatedPrimitive{
		Primitive:    p,
		ObjectTransf: make(map[string][]*mat.Dense),
	}
	for f := hull.Start; f < hull.End; f++ {
		inst.FrameIDs = append(inst.FrameIDs, f)
	}

	for _, fid := range inst.FrameIDs {
		pose, err := store.RawPose(fid)
		if err != nil {
			return nil, err
		}
		inst.Body = append(inst.Body, pose.Body)

		if p.Pair.LH.Valid && p.Pair.LH.Interval.ContainsFrame(fid) {
			inst.LeftHand = append(inst.LeftHand, pose.LeftHand)
			inst.LeftMask = append(inst.LeftMask, true)
		} else {
			inst.LeftHand = append(inst.LeftHand, nil)
			inst.LeftMask = append(inst.LeftMask, false)
		}
		if p.Pair.RH.Valid && p.Pair.RH.Interval.ContainsFrame(fid) {
			inst.RightHand = append(inst.RightHand, pose.RightHand)
			inst.RightMask = append(inst.RightMask, true)
		} else {
			inst.RightHand = append(inst.RightHand, nil)
			inst.RightMask = append(inst.RightMask, false)
		}
	}

	// Objects without transform data are dropped from the involvement
	// list rather than failing the primitive: the scene may track only
	// a subset of mentioned objects.
	for _, objID := range p.Objects {
		transfs := make([]*mat.Dense, 0, len(inst.FrameIDs))
		known := true
		for _, fid := range inst.FrameIDs {
			m, err := store.ObjectTransform(objID, fid)
			if err != nil {
				known = false
				break
			}
			transfs = append(transfs, m)
		}
		if !known {
			continue
		}
		inst.Objects = append(inst.Objects, objID)
		inst.ObjectTransf[objID] = transfs
	}

	if d.opts.ObjectLoader != nil {
		inst.ObjectModels = make(map[string]any, len(inst.Objects))
		for _, objID := range inst.Objects {
			model, err := d.loadObject(objID)
			if err != nil {
				return nil, err
			}
			inst.ObjectModels[objID] = model
		}
	}
	if d.opts.PoseEvaluator != nil {
		geom, err := d.opts.PoseEvaluator(inst)
		if err != nil {
			return nil, err
		}
		inst.Geometry = geom
	}
	return inst, nil
}

// loadObject memoizes ObjectLoader results across sequences.
func (d *Dataset) loadObject(objID string) (any, error) {
	if model, ok := d.objCache[objID]; ok {
		return model, nil
	}
	model, err := d.opts.ObjectLoader(objID)
	if err != nil {
		return nil, err
	}
	d.objCache[objID] = model
	return model, nil
}
