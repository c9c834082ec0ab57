package model_test

import (
	"errors"
	"math"
	"testing"

	"github.com/smartystreets/goconvey/convey"
	model "github.com/tasktune/fatigue/internal/domain/model"
)

func TestFeatureVector(t *testing.T) {
	convey.Convey("Given a FeatureVector", t, func() {
		convey.Convey("When reading its values", func() {
			fv := model.FeatureVector{MET: 6.5, DurationMin: 45, Preference01: 0.25}
			values := fv.Values()

			convey.Convey("Then they follow the training feature order", func() {
				convey.So(values[0], convey.ShouldEqual, 6.5)
				convey.So(values[1], convey.ShouldEqual, 45.0)
				convey.So(values[2], convey.ShouldEqual, 0.25)
				convey.So(model.FeatureNames[0], convey.ShouldEqual, "met")
				convey.So(model.FeatureNames[1], convey.ShouldEqual, "duration_min")
				convey.So(model.FeatureNames[2], convey.ShouldEqual, "preference01")
			})
		})

		convey.Convey("When all features are at their lower bounds", func() {
			fv := model.FeatureVector{}

			convey.Convey("Then validation should pass", func() {
				convey.So(fv.Validate(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When preference01 is exactly 1", func() {
			fv := model.FeatureVector{MET: 5, DurationMin: 9999, Preference01: 1.0}

			convey.Convey("Then validation should pass", func() {
				convey.So(fv.Validate(), convey.ShouldBeNil)
			})
		})
	})
}

func TestFeatureVector_ValidateRejects(t *testing.T) {
	cases := []struct {
		name  string
		fv    model.FeatureVector
		field string
	}{
		{"negative met", model.FeatureVector{MET: -1, DurationMin: 10, Preference01: 0.5}, model.FeatureMET},
		{"NaN met", model.FeatureVector{MET: math.NaN()}, model.FeatureMET},
		{"infinite met", model.FeatureVector{MET: math.Inf(1)}, model.FeatureMET},
		{"negative duration", model.FeatureVector{MET: 1, DurationMin: -1}, model.FeatureDurationMin},
		{"preference below zero", model.FeatureVector{MET: 1, Preference01: -0.01}, model.FeaturePreference01},
		{"preference above one", model.FeatureVector{MET: 1, Preference01: 1.01}, model.FeaturePreference01},
		{"NaN preference", model.FeatureVector{MET: 1, Preference01: math.NaN()}, model.FeaturePreference01},
	}

	convey.Convey("Given out-of-range feature vectors", t, func() {
		for _, tc := range cases {
			convey.Convey("When validating "+tc.name, func() {
				err := tc.fv.Validate()

				convey.Convey("Then a RangeError names the offending field", func() {
					convey.So(err, convey.ShouldNotBeNil)
					var rangeErr *model.RangeError
					convey.So(errors.As(err, &rangeErr), convey.ShouldBeTrue)
					convey.So(rangeErr.Field, convey.ShouldEqual, tc.field)
					convey.So(err.Error(), convey.ShouldContainSubstring, tc.field)
				})
			})
		}
	})
}

func TestSameOrder(t *testing.T) {
	convey.Convey("Given feature name lists", t, func() {
		convey.So(model.SameOrder([]string{"met", "duration_min", "preference01"}), convey.ShouldBeTrue)
		convey.So(model.SameOrder([]string{"duration_min", "met", "preference01"}), convey.ShouldBeFalse)
		convey.So(model.SameOrder([]string{"met", "duration_min"}), convey.ShouldBeFalse)
		convey.So(model.SameOrder(nil), convey.ShouldBeFalse)
	})
}
